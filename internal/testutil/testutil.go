// Package testutil provides shared test helpers: temporary history databases
// and a scripted fake Jenkins instance.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/history"
)

// AcceptedBody is the response Jenkins sends for a valid Jenkinsfile.
const AcceptedBody = "Jenkinsfile successfully validated."

// RejectedBody is a rejection response carrying one parseable fragment.
const RejectedBody = "Errors encountered validating Jenkinsfile:\n" +
	"WorkflowScript: 46: unexpected token: } @ line 46, column 1."

// TestHistory creates a temporary SQLite history database that is cleaned up
// with the test.
func TestHistory(t *testing.T) *history.DB {
	t.Helper()
	f, err := os.CreateTemp("", "jlint-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := history.Open(f.Name(), 0)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// DiscardLogger returns a logger for components under test.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// JenkinsScript controls how the fake instance responds.
type JenkinsScript struct {
	CrumbStatus    int    // status for the crumb endpoint; 0 issues a crumb
	ValidateStatus int    // status for the validate endpoint; 0 means 200
	Response       string // validate response body
}

// FakeJenkins serves the crumb and validate endpoints from a script and
// records what it saw. Closed with the test.
type FakeJenkins struct {
	*httptest.Server

	mu            sync.Mutex
	crumbCalls    int
	validateCalls int
	lastContent   string
	lastCrumb     string
}

// NewFakeJenkins starts a fake instance following script.
func NewFakeJenkins(t *testing.T, script JenkinsScript) *FakeJenkins {
	t.Helper()
	f := &FakeJenkins{}

	mux := http.NewServeMux()
	mux.HandleFunc("/crumbIssuer/api/json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.crumbCalls++
		f.mu.Unlock()
		if script.CrumbStatus != 0 {
			w.WriteHeader(script.CrumbStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"crumb":"fake-crumb","crumbRequestField":"Jenkins-Crumb"}`)
	})
	mux.HandleFunc("/pipeline-model-converter/validate", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.validateCalls++
		f.lastContent = r.FormValue("jenkinsfile")
		f.lastCrumb = r.Header.Get("Jenkins-Crumb")
		f.mu.Unlock()
		if script.ValidateStatus != 0 {
			w.WriteHeader(script.ValidateStatus)
			return
		}
		fmt.Fprint(w, script.Response)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// CrumbCalls reports how many crumb fetches were served.
func (f *FakeJenkins) CrumbCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crumbCalls
}

// ValidateCalls reports how many validate posts were served.
func (f *FakeJenkins) ValidateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateCalls
}

// LastContent returns the Jenkinsfile content of the latest validate post.
func (f *FakeJenkins) LastContent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastContent
}

// LastCrumb returns the crumb header of the latest validate post.
func (f *FakeJenkins) LastCrumb() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCrumb
}
