package enso

import (
	"log/slog"

	"github.com/ashita-ai/enso/agent"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port          int
	logger        *slog.Logger
	version       string
	manifestPath  string
	registrations []agent.Registration
}

// WithAgent registers an agent handler. Multiple agents may be registered;
// each answers on POST /{id}.
func WithAgent(cfg AgentConfig, handler Handler) Option {
	return func(o *resolvedOptions) {
		o.registrations = append(o.registrations, agent.Registration{
			Config:  cfg,
			Handler: handler,
		})
	}
}

// WithWelcome attaches onboarding metadata to the most recently registered
// agent.
func WithWelcome(w Welcome) Option {
	return func(o *resolvedOptions) {
		if n := len(o.registrations); n > 0 {
			o.registrations[n-1].Welcome = &w
		}
	}
}

// WithPort overrides the TCP port from config (ENSO_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithManifest sets the path of the project manifest (default "enso.yaml").
// The manifest supplies agent names, descriptions, and filenames; handlers
// registered with WithAgent supply behavior.
func WithManifest(path string) Option {
	return func(o *resolvedOptions) { o.manifestPath = path }
}
