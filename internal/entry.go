// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/uri"
	"golang.org/x/sync/errgroup"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/api"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/confwatch"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/docstore"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/events"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/history"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/jenkins"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/lsp"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/mcpserver"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/models"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/validator"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/workspace"
)

// newLogger builds the process logger. It writes to stderr because stdout
// carries the LSP (or MCP) wire protocol.
func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}

// openHistory opens the validation history store, creating its directory if
// needed. Returns a nil Recorder when history is disabled.
func openHistory(cfg *Config) (history.Recorder, func(), error) {
	if cfg.History.Disabled {
		return nil, func() {}, nil
	}
	if dir := filepath.Dir(cfg.History.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := history.Open(cfg.History.Path, cfg.History.Retention)
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}

// Run starts the language server on stdio with the given options and blocks
// until the session ends. A session that terminates without the client's
// shutdown request returns an error so the process exits non-zero.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := newLogger(cfg)

	logger.Info("configuration loaded",
		slog.String("jenkins_url", cfg.Jenkins.URL),
		slog.String("jenkins_user", cfg.Jenkins.Username),
		slog.Bool("history_enabled", !cfg.History.Disabled),
		slog.Bool("debug_enabled", cfg.Debug.Enabled),
		slog.String("log_level", cfg.Log.Level))

	client := jenkins.New(cfg.Jenkins.ClientOptions())

	hist, closeHist, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeHist()

	// The event broker only matters when the debug surface can stream it.
	var broker *events.Broker
	if cfg.Debug.Enabled {
		broker = events.NewBroker()
		defer broker.Close()
	}

	svc := validator.NewService(client, hist, broker, logger)
	store := docstore.New()

	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(lsp.Stdio()))
	srv := lsp.NewServer(svc, store, conn, app.version, logger)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Local debug HTTP server.
	var httpServer *http.Server
	if cfg.Debug.Enabled {
		info := api.Info{
			Version:    app.version,
			JenkinsURL: cfg.Jenkins.URL,
			Username:   cfg.Jenkins.Username,
			Insecure:   cfg.Jenkins.Insecure,
		}
		if !cfg.History.Disabled {
			info.HistoryPath = cfg.History.Path
		}
		h := api.NewHandler(svc, hist, store, info)
		httpServer = &http.Server{
			Addr:    cfg.Debug.Addr,
			Handler: api.NewRouter(h, broker, logger),
		}
		g.Go(func() error {
			logger.Info("debug server listening", slog.String("address", cfg.Debug.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
	}

	// Config hot reload: swap the Jenkins client when the file changes.
	if cfgPath := app.resolvedConfigPath(); cfgPath != "" {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			g.Go(func() error {
				return confwatch.Watch(gCtx, cfgPath, logger, func() error {
					next, loadErr := LoadConfig(cfgPath)
					if loadErr != nil {
						return loadErr
					}
					svc.SwapClient(jenkins.New(next.Jenkins.ClientOptions()))
					logger.Info("jenkins connection settings updated",
						slog.String("jenkins_url", next.Jenkins.URL))
					return nil
				})
			})
		}
	}

	// stopping marks an externally requested shutdown so the session
	// goroutine does not mistake the dropped connection for a client error.
	var stopping atomic.Bool

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			stopping.Store(true)
			_ = conn.Close()
		case <-gCtx.Done():
		}

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("debug server shutdown", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	// The LSP session itself.
	conn.Go(gCtx, srv.Handler())
	logger.Info("language server listening on stdio")

	g.Go(func() error {
		defer stop()
		teardown := func() {
			srv.Abort()
			_ = conn.Close()
			srv.Wait()
		}

		select {
		case <-srv.Done():
			teardown()
			if srv.ShutdownRequested() {
				return nil
			}
			return errors.New("exit received without shutdown request")
		case <-conn.Done():
			teardown()
			if stopping.Load() || srv.ShutdownRequested() {
				return nil
			}
			return errors.New("connection closed without shutdown request")
		case <-gCtx.Done():
			teardown()
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("language server error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("language server stopped")
	return nil
}

// RunMCP starts the MCP server on stdio and blocks until the client
// disconnects or a shutdown signal arrives.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := jenkins.New(cfg.Jenkins.ClientOptions())

	hist, closeHist, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeHist()

	svc := validator.NewService(client, hist, nil, logger)

	finder, err := mcpFinder(app.workspaceDir)
	if err != nil {
		return err
	}

	srv := mcpserver.New(svc, hist, finder, app.version)
	logger.Info("MCP server listening on stdio",
		slog.String("jenkins_url", cfg.Jenkins.URL),
		slog.Bool("workspace", finder != nil))
	return srv.Serve(ctx)
}

// mcpFinder resolves the workspace the file tools operate on. An explicit
// directory must exist; otherwise the working directory is used when it is
// readable, and file tools are disabled when it is not.
func mcpFinder(dir string) (workspace.Finder, error) {
	if dir != "" {
		fs, err := workspace.NewFS(dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil
	}
	fs, err := workspace.NewFS(wd)
	if err != nil {
		return nil, nil
	}
	return fs, nil
}

// Check validates Jenkinsfiles from the command line and prints one line per
// result. It returns an error when any file is rejected or a validation
// request fails, so the process exits non-zero.
func Check(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := jenkins.New(cfg.Jenkins.ClientOptions())
	svc := validator.NewService(client, nil, nil, logger)

	targets, err := collectTargets(app.paths)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no Jenkinsfiles found")
	}

	failed := 0
	for _, path := range targets {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			abs = path
		}
		rec, valErr := svc.Validate(ctx, string(uri.File(abs)), string(data))
		if valErr != nil {
			return fmt.Errorf("validate %s: %w", path, valErr)
		}
		if rec.Outcome == models.OutcomeAccepted {
			fmt.Printf("%s: OK\n", path)
			continue
		}
		failed++
		if len(rec.Diagnostics) == 0 {
			fmt.Printf("%s: rejected\n%s\n", path, rec.Detail)
			continue
		}
		// Diagnostics are zero-based; file:line:col output is one-based.
		for _, d := range rec.Diagnostics {
			fmt.Printf("%s:%d:%d: %s\n", path, d.Line+1, d.Column+1, d.Message)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed validation", failed, len(targets))
	}
	return nil
}

// collectTargets expands the argument list into Jenkinsfile paths. Explicit
// files are taken as-is; directories are searched recursively. No arguments
// means the working directory.
func collectTargets(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}

	var targets []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			targets = append(targets, arg)
			continue
		}

		fs, err := workspace.NewFS(arg)
		if err != nil {
			return nil, err
		}
		files, err := fs.Discover("")
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			targets = append(targets, filepath.Join(arg, f.Path))
		}
	}
	return targets, nil
}
