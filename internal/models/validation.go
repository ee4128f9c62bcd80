// Package models defines the domain types for jenkinsfile-lint-lsp.
package models

import (
	"time"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/diagnostics"
)

// Outcome labels stored in history rows and carried on events.
const (
	OutcomeAccepted        = "accepted"
	OutcomeRejected        = "rejected"
	OutcomeAuth            = "auth"
	OutcomeEndpointMissing = "endpoint_missing"
	OutcomeNetwork         = "network"
)

// ValidationRecord is the result of one validation attempt against Jenkins.
type ValidationRecord struct {
	ID          string                   `json:"id"`
	URI         string                   `json:"uri,omitempty"`
	Checksum    string                   `json:"checksum"`
	Outcome     string                   `json:"outcome"`
	Detail      string                   `json:"detail,omitempty"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	DurationMS  int64                    `json:"duration_ms"`
	CreatedAt   time.Time                `json:"created_at"`
}

// Failed reports whether the attempt never produced a verdict from Jenkins.
func (r ValidationRecord) Failed() bool {
	return r.Outcome != OutcomeAccepted && r.Outcome != OutcomeRejected
}

// ValidationSummary is a lightweight representation returned by list operations.
type ValidationSummary struct {
	ID          string    `json:"id"`
	URI         string    `json:"uri,omitempty"`
	Checksum    string    `json:"checksum"`
	Outcome     string    `json:"outcome"`
	Diagnostics int       `json:"diagnostics"`
	CreatedAt   time.Time `json:"created_at"`
}
