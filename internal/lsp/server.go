// Package lsp implements the language server endpoint: it tracks open
// documents, triggers remote validations on open and save, and publishes the
// resulting diagnostics back to the editor.
package lsp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.lsp.dev/protocol"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/apperr"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/diagnostics"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/docstore"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/validator"
)

// ServerName is reported in the initialize response and stamped on every
// published diagnostic as its source.
const ServerName = "jenkinsfile-lint-lsp"

// Notifier sends server-to-client notifications. jsonrpc2.Conn satisfies it;
// tests substitute a recorder.
type Notifier interface {
	Notify(ctx context.Context, method string, params interface{}) error
}

// Server handles the LSP methods the service cares about. Document events
// mutate the store synchronously and reply immediately; the remote exchange
// runs in a background task per trigger.
type Server struct {
	logger  *slog.Logger
	store   *docstore.Store
	svc     *validator.Service
	notify  Notifier
	version string

	mu       sync.Mutex
	seq      map[string]uint64
	inflight map[string]context.CancelFunc
	wg       sync.WaitGroup

	shutdownSeen atomic.Bool
	exitOnce     sync.Once
	exited       chan struct{}
}

// NewServer creates a server publishing through notify.
func NewServer(svc *validator.Service, store *docstore.Store, notify Notifier, version string, logger *slog.Logger) *Server {
	return &Server{
		logger:   logger,
		store:    store,
		svc:      svc,
		notify:   notify,
		version:  version,
		seq:      make(map[string]uint64),
		inflight: make(map[string]context.CancelFunc),
		exited:   make(chan struct{}),
	}
}

// Initialize advertises full-document sync: the client resends the whole text
// on every change, so the store never has to splice incremental edits.
func (s *Server) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if params != nil && params.ClientInfo != nil {
		s.logger.Info("client connected", "name", params.ClientInfo.Name, "client_version", params.ClientInfo.Version)
	}
	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
				Save:      &protocol.SaveOptions{IncludeText: false},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    ServerName,
			Version: s.version,
		},
	}, nil
}

// Initialized announces readiness in the client's log panel.
func (s *Server) Initialized(ctx context.Context, _ *protocol.InitializedParams) error {
	return s.logMessage(ctx, protocol.MessageTypeInfo, "Jenkinsfile LSP server initialized")
}

// Shutdown stops accepting new work and cancels in-flight validations.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownSeen.Store(true)
	s.cancelAll()
	return nil
}

// Exit releases Done. The caller owns process teardown.
func (s *Server) Exit(ctx context.Context) error {
	s.exitOnce.Do(func() { close(s.exited) })
	return nil
}

// Done is closed once the client sends the exit notification.
func (s *Server) Done() <-chan struct{} { return s.exited }

// ShutdownRequested reports whether a shutdown request preceded exit, which
// decides the process exit code.
func (s *Server) ShutdownRequested() bool { return s.shutdownSeen.Load() }

// DidOpen caches the document and validates it.
func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	uri := string(doc.URI)
	s.store.Put(uri, doc.Text, doc.Version)
	s.logger.Debug("document opened", "uri", uri, "version", doc.Version)
	s.triggerValidation(uri)
	return nil
}

// DidChange updates the cache without validating; diagnostics refresh on the
// next save. With full sync the last change event carries the complete text.
func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	if len(params.ContentChanges) == 0 {
		return nil
	}
	uri := string(params.TextDocument.URI)
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	s.store.Put(uri, text, params.TextDocument.Version)
	return nil
}

// DidSave validates the cached content. The save notification itself carries
// no text; a save for a document the store has never seen is skipped.
func (s *Server) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	if _, ok := s.store.Get(uri); !ok {
		s.logger.Warn("save event for unknown document", "uri", uri)
		return nil
	}
	s.triggerValidation(uri)
	return nil
}

// DidClose drops the document, cancels any in-flight validation for it, and
// clears its diagnostics with a versionless empty publication.
func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	s.store.Remove(uri)

	s.mu.Lock()
	s.seq[uri]++ // any result still in flight is now stale
	if cancel, ok := s.inflight[uri]; ok {
		cancel()
		delete(s.inflight, uri)
	}
	s.mu.Unlock()

	return s.publish(ctx, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri),
		Diagnostics: []protocol.Diagnostic{},
	})
}

// Wait blocks until all background validations have finished.
func (s *Server) Wait() { s.wg.Wait() }

// Abort cancels all in-flight validations without entering shutdown. Used
// when the transport drops before the shutdown handshake.
func (s *Server) Abort() { s.cancelAll() }

// triggerValidation starts a validation task for the document's current
// snapshot. A newer trigger supersedes an older in-flight attempt for the
// same document: the old request is canceled, and its result would be
// discarded as stale at publish time anyway.
func (s *Server) triggerValidation(uri string) {
	snap, ok := s.store.Get(uri)
	if !ok {
		return
	}

	s.mu.Lock()
	s.seq[uri]++
	seq := s.seq[uri]
	if cancel, ok := s.inflight[uri]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.inflight[uri] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			if s.seq[uri] == seq {
				delete(s.inflight, uri)
			}
			s.mu.Unlock()
			cancel()
		}()
		s.runValidation(ctx, uri, seq, snap)
	}()
}

func (s *Server) runValidation(ctx context.Context, uri string, seq uint64, snap docstore.Snapshot) {
	rec, err := s.svc.Validate(ctx, uri, snap.Text)
	if err != nil {
		if ctx.Err() != nil {
			return // superseded or closed
		}
		s.logger.Error("validation attempt failed", "uri", uri, "outcome", rec.Outcome, "error", err)
		s.showError(ctx, failureMessage(err))
		return
	}

	if s.stale(uri, seq, snap.Version) {
		s.logger.Debug("discarding stale validation result", "uri", uri)
		return
	}
	s.publish(ctx, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri),
		Version:     publishVersion(snap.Version),
		Diagnostics: toProtocolDiagnostics(rec.Diagnostics),
	})
}

// stale reports whether a result computed at seq for the given document
// version may no longer be published.
func (s *Server) stale(uri string, seq uint64, version int32) bool {
	s.mu.Lock()
	newest := s.seq[uri]
	s.mu.Unlock()
	if newest != seq {
		return true
	}
	snap, ok := s.store.Get(uri)
	return !ok || snap.Version != version
}

func (s *Server) cancelAll() {
	s.mu.Lock()
	for uri, cancel := range s.inflight {
		cancel()
		delete(s.inflight, uri)
	}
	s.mu.Unlock()
}

func (s *Server) publish(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	if err := s.notify.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, params); err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("publish diagnostics", "uri", params.URI, "error", err)
		}
		return err
	}
	return nil
}

func (s *Server) showError(ctx context.Context, msg string) {
	err := s.notify.Notify(ctx, protocol.MethodWindowShowMessage, &protocol.ShowMessageParams{
		Type:    protocol.MessageTypeError,
		Message: msg,
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("show message", "error", err)
	}
}

func (s *Server) logMessage(ctx context.Context, typ protocol.MessageType, msg string) error {
	return s.notify.Notify(ctx, protocol.MethodWindowLogMessage, &protocol.LogMessageParams{
		Type:    typ,
		Message: msg,
	})
}

func failureMessage(err error) string {
	if errors.Is(err, apperr.ErrAuth) {
		return "Jenkins authentication failed: " + err.Error()
	}
	return "Validation failed: " + err.Error()
}

// toProtocolDiagnostics maps parsed diagnostics onto zero-width ranges: the
// remote reports a point, not a span, and editors render a point range as a
// marker on the position.
func toProtocolDiagnostics(diags []diagnostics.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		pos := protocol.Position{Line: d.Line, Character: d.Column}
		out = append(out, protocol.Diagnostic{
			Range:    protocol.Range{Start: pos, End: pos},
			Severity: protocol.DiagnosticSeverityError,
			Source:   ServerName,
			Message:  d.Message,
		})
	}
	return out
}

func publishVersion(v int32) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}
