package lsp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/docstore"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/jenkins"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/testutil"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/validator"
)

type notification struct {
	method string
	params interface{}
}

// captureNotifier records outbound notifications instead of writing them to a
// connection.
type captureNotifier struct {
	mu    sync.Mutex
	notes []notification
}

func (c *captureNotifier) Notify(_ context.Context, method string, params interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, notification{method: method, params: params})
	return nil
}

func (c *captureNotifier) publishes() []*protocol.PublishDiagnosticsParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.PublishDiagnosticsParams
	for _, n := range c.notes {
		if n.method == protocol.MethodTextDocumentPublishDiagnostics {
			out = append(out, n.params.(*protocol.PublishDiagnosticsParams))
		}
	}
	return out
}

func (c *captureNotifier) shows() []*protocol.ShowMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.ShowMessageParams
	for _, n := range c.notes {
		if n.method == protocol.MethodWindowShowMessage {
			out = append(out, n.params.(*protocol.ShowMessageParams))
		}
	}
	return out
}

func (c *captureNotifier) logs() []*protocol.LogMessageParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.LogMessageParams
	for _, n := range c.notes {
		if n.method == protocol.MethodWindowLogMessage {
			out = append(out, n.params.(*protocol.LogMessageParams))
		}
	}
	return out
}

func newServerAt(t *testing.T, baseURL string) (*Server, *captureNotifier) {
	t.Helper()
	client := jenkins.New(jenkins.Options{BaseURL: baseURL, Username: "ci-bot", APIToken: "token123"})
	svc := validator.NewService(client, nil, nil, testutil.DiscardLogger())
	capture := &captureNotifier{}
	srv := NewServer(svc, docstore.New(), capture, "test", testutil.DiscardLogger())
	return srv, capture
}

func newTestServer(t *testing.T, script testutil.JenkinsScript) (*Server, *captureNotifier, *testutil.FakeJenkins) {
	t.Helper()
	fake := testutil.NewFakeJenkins(t, script)
	srv, capture := newServerAt(t, fake.URL)
	return srv, capture, fake
}

func openDoc(t *testing.T, srv *Server, uri, text string, version int32) {
	t.Helper()
	err := srv.DidOpen(context.Background(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentURI(uri),
			LanguageID: "groovy",
			Version:    version,
			Text:       text,
		},
	})
	if err != nil {
		t.Fatalf("DidOpen: %v", err)
	}
}

func changeDoc(t *testing.T, srv *Server, uri, text string, version int32) {
	t.Helper()
	err := srv.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
	})
	if err != nil {
		t.Fatalf("DidChange: %v", err)
	}
}

func saveDoc(t *testing.T, srv *Server, uri string) {
	t.Helper()
	err := srv.DidSave(context.Background(), &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
	})
	if err != nil {
		t.Fatalf("DidSave: %v", err)
	}
}

func closeDoc(t *testing.T, srv *Server, uri string) {
	t.Helper()
	err := srv.DidClose(context.Background(), &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
	})
	if err != nil {
		t.Fatalf("DidClose: %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// blockingJenkins parks the first validate request until release is called so
// tests can hold one attempt in flight.
func blockingJenkins(t *testing.T) (*httptest.Server, *atomic.Int32, func()) {
	t.Helper()
	var calls atomic.Int32
	var once sync.Once
	release := make(chan struct{})
	releaseFn := func() { once.Do(func() { close(release) }) }

	mux := http.NewServeMux()
	mux.HandleFunc("/crumbIssuer/api/json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"crumb":"abc","crumbRequestField":"Jenkins-Crumb"}`)
	})
	mux.HandleFunc("/pipeline-model-converter/validate", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			<-release
		}
		fmt.Fprint(w, testutil.AcceptedBody)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(releaseFn)
	return srv, &calls, releaseFn
}

func TestInitialize(t *testing.T) {
	srv, _, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	result, err := srv.Initialize(context.Background(), &protocol.InitializeParams{})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	syncOpts, ok := result.Capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	if !ok {
		t.Fatalf("TextDocumentSync = %T", result.Capabilities.TextDocumentSync)
	}
	if !syncOpts.OpenClose {
		t.Error("OpenClose not advertised")
	}
	if syncOpts.Change != protocol.TextDocumentSyncKindFull {
		t.Errorf("Change = %v, want full sync", syncOpts.Change)
	}
	if syncOpts.Save == nil || syncOpts.Save.IncludeText {
		t.Errorf("Save = %+v, want save notifications without text", syncOpts.Save)
	}
	if result.ServerInfo == nil || result.ServerInfo.Name != ServerName || result.ServerInfo.Version != "test" {
		t.Errorf("ServerInfo = %+v", result.ServerInfo)
	}
}

func TestInitialized_AnnouncesReadiness(t *testing.T) {
	srv, capture, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	if err := srv.Initialized(context.Background(), &protocol.InitializedParams{}); err != nil {
		t.Fatalf("Initialized: %v", err)
	}

	logs := capture.logs()
	if len(logs) != 1 {
		t.Fatalf("log messages = %d, want 1", len(logs))
	}
	if logs[0].Type != protocol.MessageTypeInfo || logs[0].Message != "Jenkinsfile LSP server initialized" {
		t.Errorf("log = %+v", logs[0])
	}
}

func TestDidOpen_AcceptedPublishesEmptyDiagnostics(t *testing.T) {
	srv, capture, fake := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	const uri = "file:///work/Jenkinsfile"
	openDoc(t, srv, uri, "pipeline { agent any }", 1)
	srv.Wait()

	if fake.LastContent() != "pipeline { agent any }" {
		t.Errorf("posted content = %q", fake.LastContent())
	}

	pubs := capture.publishes()
	if len(pubs) != 1 {
		t.Fatalf("publishes = %d, want 1", len(pubs))
	}
	p := pubs[0]
	if string(p.URI) != uri || p.Version != 1 {
		t.Errorf("publish for %q version %d", p.URI, p.Version)
	}
	if p.Diagnostics == nil || len(p.Diagnostics) != 0 {
		t.Errorf("diagnostics = %#v, want empty non-nil", p.Diagnostics)
	}
}

func TestDidOpen_RejectedPublishesParsedDiagnostics(t *testing.T) {
	srv, capture, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.RejectedBody})

	openDoc(t, srv, "file:///work/Jenkinsfile", "pipeline {", 1)
	srv.Wait()

	pubs := capture.publishes()
	if len(pubs) != 1 {
		t.Fatalf("publishes = %d, want 1", len(pubs))
	}
	diags := pubs[0].Diagnostics
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %#v, want one", diags)
	}
	d := diags[0]
	if d.Range.Start.Line != 45 || d.Range.Start.Character != 0 {
		t.Errorf("start = %+v, want 45:0", d.Range.Start)
	}
	if d.Range.End != d.Range.Start {
		t.Errorf("range = %+v, want zero width", d.Range)
	}
	if d.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v", d.Severity)
	}
	if d.Source != ServerName {
		t.Errorf("source = %q", d.Source)
	}
	if d.Message != "unexpected token: }" {
		t.Errorf("message = %q", d.Message)
	}
}

func TestDidChange_UpdatesCacheWithoutValidating(t *testing.T) {
	srv, _, fake := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	const uri = "file:///work/Jenkinsfile"
	openDoc(t, srv, uri, "v1 text", 1)
	srv.Wait()
	if fake.ValidateCalls() != 1 {
		t.Fatalf("validate calls after open = %d", fake.ValidateCalls())
	}

	changeDoc(t, srv, uri, "v2 text", 2)
	time.Sleep(50 * time.Millisecond)

	if fake.ValidateCalls() != 1 {
		t.Errorf("validate calls after change = %d, want still 1", fake.ValidateCalls())
	}
	snap, ok := srv.store.Get(uri)
	if !ok || snap.Text != "v2 text" || snap.Version != 2 {
		t.Errorf("snapshot = %+v, %v", snap, ok)
	}
}

func TestDidSave_ValidatesCachedContent(t *testing.T) {
	srv, capture, fake := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	const uri = "file:///work/Jenkinsfile"
	openDoc(t, srv, uri, "v1 text", 1)
	srv.Wait()
	changeDoc(t, srv, uri, "v2 text", 2)
	saveDoc(t, srv, uri)
	srv.Wait()

	// The save notification carries no text; the validated content must be
	// the cached v2 snapshot.
	if fake.LastContent() != "v2 text" {
		t.Errorf("posted content = %q, want cached v2 text", fake.LastContent())
	}

	pubs := capture.publishes()
	if len(pubs) != 2 {
		t.Fatalf("publishes = %d, want 2", len(pubs))
	}
	if pubs[1].Version != 2 {
		t.Errorf("save publish version = %d, want 2", pubs[1].Version)
	}
}

func TestDidSave_UnknownDocumentSkipped(t *testing.T) {
	srv, capture, fake := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	saveDoc(t, srv, "file:///never/opened")
	srv.Wait()

	if fake.ValidateCalls() != 0 {
		t.Errorf("validate calls = %d, want 0", fake.ValidateCalls())
	}
	if len(capture.publishes()) != 0 {
		t.Error("unexpected publish for unknown document")
	}
}

func TestDidClose_ClearsDiagnostics(t *testing.T) {
	srv, capture, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.RejectedBody})

	const uri = "file:///work/Jenkinsfile"
	openDoc(t, srv, uri, "pipeline {", 1)
	srv.Wait()
	closeDoc(t, srv, uri)

	if _, ok := srv.store.Get(uri); ok {
		t.Error("document still cached after close")
	}

	pubs := capture.publishes()
	if len(pubs) != 2 {
		t.Fatalf("publishes = %d, want 2", len(pubs))
	}
	last := pubs[1]
	if len(last.Diagnostics) != 0 {
		t.Errorf("close publish diagnostics = %#v, want empty", last.Diagnostics)
	}
	if last.Version != 0 {
		t.Errorf("close publish version = %d, want unset", last.Version)
	}
}

func TestTransportFailure_NothingPublished(t *testing.T) {
	tests := []struct {
		name   string
		status int
		prefix string
	}{
		{"endpoint missing", 404, "Validation failed:"},
		{"bad credentials", 401, "Jenkins authentication failed:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, capture, _ := newTestServer(t, testutil.JenkinsScript{ValidateStatus: tt.status})

			openDoc(t, srv, "file:///work/Jenkinsfile", "pipeline {}", 1)
			srv.Wait()

			if pubs := capture.publishes(); len(pubs) != 0 {
				t.Errorf("publishes = %d, want 0 (prior diagnostics stay untouched)", len(pubs))
			}
			shows := capture.shows()
			if len(shows) != 1 {
				t.Fatalf("show messages = %d, want 1", len(shows))
			}
			if shows[0].Type != protocol.MessageTypeError {
				t.Errorf("message type = %v", shows[0].Type)
			}
			if !strings.HasPrefix(shows[0].Message, tt.prefix) {
				t.Errorf("message = %q, want prefix %q", shows[0].Message, tt.prefix)
			}
		})
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	backend, calls, release := blockingJenkins(t)
	srv, capture := newServerAt(t, backend.URL)

	const uri = "file:///work/Jenkinsfile"
	openDoc(t, srv, uri, "v1 text", 1)
	waitUntil(t, func() bool { return calls.Load() >= 1 })

	// A newer version arrives while the first attempt is parked in flight.
	changeDoc(t, srv, uri, "v2 text", 2)
	saveDoc(t, srv, uri)
	srv.Wait()
	release()

	pubs := capture.publishes()
	if len(pubs) != 1 {
		t.Fatalf("publishes = %d, want only the v2 result", len(pubs))
	}
	if pubs[0].Version != 2 {
		t.Errorf("published version = %d, want 2", pubs[0].Version)
	}
	if len(capture.shows()) != 0 {
		t.Errorf("superseded attempt must not surface an error, got %+v", capture.shows())
	}
}

func TestDidClose_CancelsInFlight(t *testing.T) {
	backend, calls, release := blockingJenkins(t)
	srv, capture := newServerAt(t, backend.URL)

	const uri = "file:///work/Jenkinsfile"
	openDoc(t, srv, uri, "v1 text", 1)
	waitUntil(t, func() bool { return calls.Load() >= 1 })

	closeDoc(t, srv, uri)
	srv.Wait()
	release()

	pubs := capture.publishes()
	if len(pubs) != 1 {
		t.Fatalf("publishes = %d, want only the close clear", len(pubs))
	}
	if len(pubs[0].Diagnostics) != 0 || pubs[0].Version != 0 {
		t.Errorf("close publish = %+v", pubs[0])
	}
	if len(capture.shows()) != 0 {
		t.Errorf("canceled attempt must not surface an error, got %+v", capture.shows())
	}
}

func TestRepeatedSavesRepublish(t *testing.T) {
	srv, capture, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	const uri = "file:///work/Jenkinsfile"
	openDoc(t, srv, uri, "pipeline { agent any }", 1)
	srv.Wait()
	saveDoc(t, srv, uri)
	srv.Wait()

	// Identical content validated twice yields two publications, not one.
	pubs := capture.publishes()
	if len(pubs) != 2 {
		t.Fatalf("publishes = %d, want 2", len(pubs))
	}
	for i, p := range pubs {
		if len(p.Diagnostics) != 0 {
			t.Errorf("publish %d diagnostics = %#v, want empty", i, p.Diagnostics)
		}
	}
}

func TestShutdownAndExit(t *testing.T) {
	srv, _, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	if srv.ShutdownRequested() {
		t.Error("ShutdownRequested before shutdown")
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !srv.ShutdownRequested() {
		t.Error("ShutdownRequested not recorded")
	}

	select {
	case <-srv.Done():
		t.Fatal("Done closed before exit")
	default:
	}

	if err := srv.Exit(context.Background()); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if err := srv.Exit(context.Background()); err != nil {
		t.Fatalf("second Exit: %v", err)
	}

	select {
	case <-srv.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after exit")
	}
}

func dispatch(t *testing.T, srv *Server, req jsonrpc2.Request) (interface{}, error) {
	t.Helper()
	var result interface{}
	var replyErr error
	reply := func(_ context.Context, res interface{}, err error) error {
		result, replyErr = res, err
		return nil
	}
	if err := srv.Handler()(context.Background(), reply, req); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return result, replyErr
}

func TestHandler_InitializeRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	req, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(1), protocol.MethodInitialize, protocol.InitializeParams{})
	if err != nil {
		t.Fatal(err)
	}
	result, replyErr := dispatch(t, srv, req)
	if replyErr != nil {
		t.Fatalf("reply error: %v", replyErr)
	}
	if _, ok := result.(*protocol.InitializeResult); !ok {
		t.Fatalf("result = %T", result)
	}
}

func TestHandler_DidOpenRouted(t *testing.T) {
	srv, capture, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	req, err := jsonrpc2.NewNotification(protocol.MethodTextDocumentDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        "file:///work/Jenkinsfile",
			LanguageID: "groovy",
			Version:    1,
			Text:       "pipeline { agent any }",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, replyErr := dispatch(t, srv, req); replyErr != nil {
		t.Fatalf("reply error: %v", replyErr)
	}
	srv.Wait()

	if _, ok := srv.store.Get("file:///work/Jenkinsfile"); !ok {
		t.Error("document not cached via handler dispatch")
	}
	if len(capture.publishes()) != 1 {
		t.Errorf("publishes = %d, want 1", len(capture.publishes()))
	}
}

func TestHandler_UnknownCallRejected(t *testing.T) {
	srv, _, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	req, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(7), "workspace/symbol", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, replyErr := dispatch(t, srv, req)
	if !errors.Is(replyErr, jsonrpc2.ErrMethodNotFound) {
		t.Errorf("reply error = %v, want method not found", replyErr)
	}
}

func TestHandler_UnknownNotificationIgnored(t *testing.T) {
	srv, _, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	req, err := jsonrpc2.NewNotification("$/setTrace", map[string]string{"value": "off"})
	if err != nil {
		t.Fatal(err)
	}
	if _, replyErr := dispatch(t, srv, req); replyErr != nil {
		t.Errorf("reply error = %v, want nil", replyErr)
	}
}

func TestHandler_MalformedParams(t *testing.T) {
	srv, _, _ := newTestServer(t, testutil.JenkinsScript{Response: testutil.AcceptedBody})

	req, err := jsonrpc2.NewNotification(protocol.MethodTextDocumentDidOpen, "not an object")
	if err != nil {
		t.Fatal(err)
	}
	_, replyErr := dispatch(t, srv, req)
	if replyErr == nil || !strings.Contains(replyErr.Error(), "parse") {
		t.Errorf("reply error = %v, want parse error", replyErr)
	}
}
