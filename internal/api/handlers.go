package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/apperr"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/docstore"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/history"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/models"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/validator"
)

// adhocURI labels records created through the debug API rather than an
// editor document.
const adhocURI = "debug://adhoc"

// Handler holds debug API route handlers.
type Handler struct {
	svc   *validator.Service
	hist  history.Recorder // nil when history is disabled
	store *docstore.Store
	info  Info
}

// NewHandler creates a new Handler.
func NewHandler(svc *validator.Service, hist history.Recorder, store *docstore.Store, info Info) *Handler {
	return &Handler{svc: svc, hist: hist, store: store, info: info}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Server:        h.info,
		Stats:         h.svc.Stats(),
		OpenDocuments: h.store.Len(),
		Time:          time.Now(),
	}
	if h.hist != nil {
		n, err := h.hist.Count()
		if err != nil {
			slog.Error("count history failed", slog.String("error", err.Error()))
		} else {
			resp.HistoryCount = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListValidations handles GET /api/validations.
func (h *Handler) ListValidations(w http.ResponseWriter, r *http.Request) {
	if h.hist == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.hist.Recent(limit, offset, q.Get("q"))
	if err != nil {
		slog.Error("list validations failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []models.ValidationSummary{}
	}
	writeJSON(w, http.StatusOK, ValidationListResponse{Validations: items, Total: total})
}

// GetValidation handles GET /api/validations/{id}.
func (h *Handler) GetValidation(w http.ResponseWriter, r *http.Request) {
	if h.hist == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := h.hist.Get(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			slog.Error("get validation failed", slog.String("id", id), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ValidateNow handles POST /api/validate: run content through the remote
// exchange without an editor involved.
func (h *Handler) ValidateNow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	rec, err := h.svc.Validate(r.Context(), adhocURI, req.Content)
	if err != nil {
		slog.Error("adhoc validation failed", slog.String("outcome", rec.Outcome), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   err.Error(),
			"outcome": rec.Outcome,
		})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
