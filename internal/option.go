package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config       *Config
	configPath   string
	version      string
	paths        []string
	workspaceDir string
}

func newApplication(opts []Option) *application {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// resolvedConfigPath is the file the hot-reload watcher observes: the
// explicit path when one was given, the default location otherwise.
func (a *application) resolvedConfigPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return DefaultConfigPath()
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath records where the configuration was loaded from, enabling
// hot reload.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(a *application) {
		if v != "" {
			a.version = v
		}
	}
}

// WithPaths sets the files or directories a check run validates.
func WithPaths(paths ...string) Option {
	return func(a *application) {
		a.paths = paths
	}
}

// WithWorkspaceDir sets the directory the MCP file tools operate on.
func WithWorkspaceDir(dir string) Option {
	return func(a *application) {
		a.workspaceDir = dir
	}
}
