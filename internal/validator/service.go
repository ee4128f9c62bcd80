// Package validator runs Jenkinsfile validations and records their outcomes.
package validator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/apperr"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/checksum"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/diagnostics"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/events"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/history"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/jenkins"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/models"
)

// Service coordinates the remote client, the diagnostic parser, the history
// store, and the event broker. It is the single validation path shared by the
// LSP server, the CLI, the MCP tools, and the debug HTTP API.
type Service struct {
	logger *slog.Logger
	hist   history.Recorder // nil when history is disabled
	broker *events.Broker   // nil when no event consumers exist

	mu     sync.RWMutex
	client *jenkins.Client

	total     atomic.Int64
	lastRunAt atomic.Int64 // unix nanos of the last completed attempt
}

// Stats is a snapshot of service counters.
type Stats struct {
	Total     int64     `json:"validations_total"`
	LastRunAt time.Time `json:"last_validation_at"`
}

// NewService creates a validation service. hist and broker may be nil.
func NewService(client *jenkins.Client, hist history.Recorder, broker *events.Broker, logger *slog.Logger) *Service {
	return &Service{
		logger: logger,
		hist:   hist,
		broker: broker,
		client: client,
	}
}

// SwapClient replaces the Jenkins client. Used by config hot reload; in-flight
// validations finish on the client they started with.
func (s *Service) SwapClient(c *jenkins.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

// Client returns the current Jenkins client.
func (s *Service) Client() *jenkins.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Validate runs the full remote exchange for content and returns the recorded
// outcome with parsed diagnostics. Rejected content is not an error; the
// returned error mirrors transport failures and wraps an apperr sentinel.
func (s *Service) Validate(ctx context.Context, uri, content string) (models.ValidationRecord, error) {
	start := time.Now()
	out, err := s.Client().ValidateFull(ctx, content)

	rec := models.ValidationRecord{
		ID:         uuid.New().String(),
		URI:        uri,
		Checksum:   checksum.SumString(content),
		DurationMS: time.Since(start).Milliseconds(),
		CreatedAt:  time.Now(),
	}
	switch {
	case err != nil:
		rec.Outcome = apperr.Label(err)
		rec.Detail = err.Error()
	case out.Accepted:
		rec.Outcome = models.OutcomeAccepted
		rec.Diagnostics = []diagnostics.Diagnostic{}
	default:
		rec.Outcome = models.OutcomeRejected
		rec.Detail = out.Raw
		rec.Diagnostics = diagnostics.Parse(out.Raw)
	}

	// A canceled attempt was superseded or its document closed; it never
	// completed, so it is not recorded.
	if err != nil && ctx.Err() != nil {
		return rec, err
	}

	s.record(rec)
	return rec, err
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	st := Stats{Total: s.total.Load()}
	if ns := s.lastRunAt.Load(); ns != 0 {
		st.LastRunAt = time.Unix(0, ns)
	}
	return st
}

func (s *Service) record(rec models.ValidationRecord) {
	s.total.Add(1)
	s.lastRunAt.Store(rec.CreatedAt.UnixNano())

	if s.hist != nil {
		if err := s.hist.Record(rec); err != nil {
			s.logger.Warn("record validation attempt", "id", rec.ID, "error", err)
		}
	}
	if s.broker != nil {
		s.broker.PublishValidation(rec)
	}
}
