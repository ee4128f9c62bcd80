// Package jenkins talks to a Jenkins instance's pipeline validation endpoints.
package jenkins

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/apperr"
)

// successMarker is the body Jenkins returns for a valid Jenkinsfile.
const successMarker = "Jenkinsfile successfully validated."

// defaultCrumbField is assumed when the instance runs without CSRF protection.
const defaultCrumbField = "Jenkins-Crumb"

const maxResponseSize = 1 << 20 // 1 MB

// Crumb is the CSRF token pair issued by Jenkins.
type Crumb struct {
	Value string `json:"crumb"`
	Field string `json:"crumbRequestField"`
}

// Zero reports whether no crumb was issued (CSRF protection disabled).
func (c Crumb) Zero() bool { return c.Value == "" }

// Outcome is the verdict Jenkins returned for one validation attempt.
// Raw carries the rejection text when Accepted is false.
type Outcome struct {
	Accepted bool
	Raw      string
}

// Options configure a Client. The zero Timeout defaults to 30s.
type Options struct {
	BaseURL  string
	Username string
	APIToken string
	Insecure bool
	Timeout  time.Duration
}

// Client performs the two-call validation exchange against Jenkins.
// All failures surface as errors wrapping an apperr sentinel; the client
// never aborts the process on a remote or network fault.
type Client struct {
	opts Options
	http *http.Client
}

// New builds a client. With Insecure set the transport still speaks TLS but
// skips certificate chain and hostname verification.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	hc := &http.Client{Timeout: opts.Timeout}
	if opts.Insecure {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // operator opt-in for self-signed instances
		}
	}
	return &Client{opts: opts, http: hc}
}

// BaseURL returns the configured instance URL, normalized.
func (c *Client) BaseURL() string { return c.opts.BaseURL }

// FetchCrumb asks Jenkins for a CSRF crumb. A 404 means the instance has
// CSRF protection disabled; that is a valid outcome and returns a zero crumb
// with no error. 401 and transport faults are real failures.
func (c *Client) FetchCrumb(ctx context.Context) (Crumb, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/crumbIssuer/api/json", nil)
	if err != nil {
		return Crumb{}, fmt.Errorf("jenkins: build crumb request: %w", err)
	}
	req.SetBasicAuth(c.opts.Username, c.opts.APIToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return Crumb{}, fmt.Errorf("jenkins: fetch crumb: %w: %v", apperr.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Crumb{}, &statusError{
			code: http.StatusUnauthorized,
			kind: apperr.ErrAuth,
			msg:  "jenkins: fetch crumb: authentication failed, check your credentials",
		}
	case resp.StatusCode == http.StatusNotFound:
		return Crumb{Field: defaultCrumbField}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Crumb{}, &statusError{
			code: resp.StatusCode,
			kind: apperr.ErrNetwork,
			msg:  fmt.Sprintf("jenkins: fetch crumb: HTTP %d: %s", resp.StatusCode, readBody(resp.Body)),
		}
	}

	var crumb Crumb
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&crumb); err != nil {
		return Crumb{}, fmt.Errorf("jenkins: decode crumb: %w: %v", apperr.ErrNetwork, err)
	}
	if crumb.Field == "" {
		crumb.Field = defaultCrumbField
	}
	return crumb, nil
}

// Validate posts content to the pipeline validation endpoint, attaching the
// crumb header when a crumb is present.
func (c *Client) Validate(ctx context.Context, content string, crumb Crumb) (Outcome, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("jenkinsfile", content); err != nil {
		return Outcome{}, fmt.Errorf("jenkins: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Outcome{}, fmt.Errorf("jenkins: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/pipeline-model-converter/validate", &buf)
	if err != nil {
		return Outcome{}, fmt.Errorf("jenkins: build validate request: %w", err)
	}
	req.SetBasicAuth(c.opts.Username, c.opts.APIToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if !crumb.Zero() {
		req.Header.Set(crumb.Field, crumb.Value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("jenkins: validate: %w: %v", apperr.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Outcome{}, &statusError{
			code: http.StatusUnauthorized,
			kind: apperr.ErrAuth,
			msg:  "jenkins: validate: authentication failed, check your credentials",
		}
	case resp.StatusCode == http.StatusForbidden:
		return Outcome{}, &statusError{
			code: http.StatusForbidden,
			kind: apperr.ErrAuth,
			msg:  "jenkins: validate: request rejected by CSRF protection",
		}
	case resp.StatusCode == http.StatusNotFound:
		return Outcome{}, &statusError{
			code: http.StatusNotFound,
			kind: apperr.ErrEndpointMissing,
			msg:  "jenkins: validation endpoint not found, ensure the pipeline-model-definition plugin is installed",
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Outcome{}, &statusError{
			code: resp.StatusCode,
			kind: apperr.ErrNetwork,
			msg:  fmt.Sprintf("jenkins: validate: HTTP %d: %s", resp.StatusCode, readBody(resp.Body)),
		}
	}

	body := readBody(resp.Body)
	if strings.Contains(body, successMarker) {
		return Outcome{Accepted: true}, nil
	}
	return Outcome{Raw: body}, nil
}

// ValidateFull runs the complete exchange: crumb fetch, then validation.
// A crumb-absent instance is validated without the header. A 403 after a
// crumb was attached is treated as crumb staleness and retried exactly once
// with a fresh crumb; the second failure propagates.
func (c *Client) ValidateFull(ctx context.Context, content string) (Outcome, error) {
	crumb, err := c.FetchCrumb(ctx)
	if err != nil {
		return Outcome{}, err
	}

	out, err := c.Validate(ctx, content, crumb)
	if err == nil || crumb.Zero() || !isStatus(err, http.StatusForbidden) {
		return out, err
	}

	crumb, err = c.FetchCrumb(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return c.Validate(ctx, content, crumb)
}

// statusError carries the HTTP status behind an apperr sentinel so the retry
// logic can distinguish a 403 without string matching.
type statusError struct {
	code int
	kind error
	msg  string
}

func (e *statusError) Error() string { return e.msg }
func (e *statusError) Unwrap() error { return e.kind }

func isStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}

func readBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxResponseSize))
	return strings.TrimSpace(string(data))
}
