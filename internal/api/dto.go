package api

import (
	"time"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/models"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/validator"
)

// Info describes the running server. Credentials are omitted by construction;
// only coordinates safe to display land here.
type Info struct {
	Version     string `json:"version"`
	JenkinsURL  string `json:"jenkins_url"`
	Username    string `json:"username"`
	Insecure    bool   `json:"insecure"`
	HistoryPath string `json:"history_path,omitempty"`
}

// StatusResponse is the payload for GET /api/status.
type StatusResponse struct {
	Server        Info            `json:"server"`
	Stats         validator.Stats `json:"stats"`
	OpenDocuments int             `json:"open_documents"`
	HistoryCount  int             `json:"history_count"`
	Time          time.Time       `json:"time"`
}

// ValidationListResponse wraps paginated validation history.
type ValidationListResponse struct {
	Validations []models.ValidationSummary `json:"validations"`
	Total       int                        `json:"total"`
}

// ValidateRequest is the request body for POST /api/validate.
type ValidateRequest struct {
	Content string `json:"content"`
}
