// Package enso is the public API for hosting agents on the Enso platform.
//
// A project registers one or more agent handlers, constructs an App, and
// runs it:
//
//	app, err := enso.New(
//	    enso.WithAgent(enso.AgentConfig{ID: "agent_hi", Name: "hello"}, hello),
//	    enso.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: enso (root) imports
// internal/* and the public sub-packages (agent, payload, keyvalue, vector,
// prompt); none of those ever import enso (root).
package enso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/enso/agent"
	"github.com/ashita-ai/enso/internal/config"
	"github.com/ashita-ai/enso/internal/server"
	"github.com/ashita-ai/enso/internal/telemetry"
	"github.com/ashita-ai/enso/internal/version"
	"github.com/ashita-ai/enso/keyvalue"
	"github.com/ashita-ai/enso/prompt"
	"github.com/ashita-ai/enso/vector"
)

// Aliases so simple projects only import the root package.
type (
	// AgentConfig identifies one agent.
	AgentConfig = agent.Config

	// Handler is the function invoked for each request to an agent.
	Handler = agent.Handler

	// Welcome is optional onboarding metadata for an agent.
	Welcome = agent.Welcome
)

// App is the agent host lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	registry     *agent.Registry
	srv          *server.Server
	kv           *keyvalue.Client
	vec          *vector.Client
	prompts      *prompt.Library
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the agent host. It loads configuration, wires telemetry
// and the cloud service clients, builds the immutable agent registry, and
// returns a ready-to-run App. It does NOT start any goroutines or accept
// HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	ver := o.version
	if ver == "" {
		ver = version.SDKVersion()
	}

	// Merge manifest agents (when a manifest exists) with the registered
	// handlers: the manifest supplies descriptions and filenames, the Go
	// code supplies behavior.
	regs := o.registrations
	manifestPath := o.manifestPath
	if manifestPath == "" {
		manifestPath = config.DefaultManifestPath
	}
	if _, statErr := os.Stat(manifestPath); statErr == nil {
		manifest, err := config.LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		regs = mergeManifest(manifest, regs)
	}

	registry, err := agent.NewRegistry(regs)
	if err != nil {
		return nil, err
	}
	if registry.Len() == 0 {
		return nil, errors.New("enso: no agents registered")
	}

	logger.Info("enso starting", "version", ver, "port", cfg.Port, "agents", registry.Len())

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, ver, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	app := &App{
		cfg:          cfg,
		registry:     registry,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      ver,
	}

	// Cloud service clients, only with credentials. Agents hosted without
	// an API key still serve requests; their context just carries nil
	// service handles.
	if cfg.CloudConfigured() {
		if err := app.buildClients(); err != nil {
			_ = otelShutdown(context.Background())
			return nil, err
		}
	} else {
		logger.Warn("ENSO_API_KEY not set, cloud services disabled")
	}

	app.srv = server.New(server.ServerConfig{
		Registry:            registry,
		NewContext:          app.newContext,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             ver,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		AgentTimeout:        cfg.AgentTimeout,
	})

	return app, nil
}

func (a *App) buildClients() error {
	kv, err := keyvalue.New(keyvalue.Config{
		BaseURL: a.cfg.TransportURL,
		APIKey:  a.cfg.APIKey,
	})
	if err != nil {
		return fmt.Errorf("keyvalue client: %w", err)
	}
	vec, err := vector.New(vector.Config{
		BaseURL: a.cfg.TransportURL,
		APIKey:  a.cfg.APIKey,
	})
	if err != nil {
		return fmt.Errorf("vector client: %w", err)
	}
	a.kv = kv
	a.vec = vec
	a.prompts = prompt.NewLibrary(kv, nil)
	return nil
}

// newContext builds the per-invocation capability bag handed to handlers.
func (a *App) newContext(runID, scope string, cfg agent.Config) *agent.Context {
	return &agent.Context{
		KV:           a.kv,
		Vector:       a.vec,
		Prompts:      a.prompts,
		SDKVersion:   version.SDKVersion(),
		OrgID:        a.cfg.OrgID,
		ProjectID:    a.cfg.ProjectID,
		DeploymentID: a.cfg.DeploymentID,
		Environment:  a.cfg.Environment,
		DevMode:      a.cfg.DevMode,
		RunID:        runID,
		Scope:        scope,
		Logger:       a.logger.With("agent_id", cfg.ID, "run_id", runID),
		Tracer:       telemetry.Tracer("enso/agent"),
		Agent:        cfg,
		Agents:       a.registry.Configs(),
	}
}

// mergeManifest overlays manifest metadata onto registered handlers,
// matching by agent id.
func mergeManifest(m config.Manifest, regs []agent.Registration) []agent.Registration {
	byID := make(map[string]config.ManifestAgent, len(m.Agents))
	for _, ma := range m.Agents {
		byID[ma.ID] = ma
	}
	merged := make([]agent.Registration, len(regs))
	for i, reg := range regs {
		if ma, ok := byID[reg.Config.ID]; ok {
			if reg.Config.Name == "" {
				reg.Config.Name = ma.Name
			}
			if reg.Config.Description == "" {
				reg.Config.Description = ma.Description
			}
			if reg.Config.Filename == "" {
				reg.Config.Filename = ma.Filename
			}
		}
		if m.ProjectID != "" && reg.Config.ProjectID == "" {
			reg.Config.ProjectID = m.ProjectID
		}
		merged[i] = reg
	}
	return merged
}

// Handler returns the root HTTP handler for use in tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown drains in-flight requests and flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("enso shutting down")
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.logger.Error("otel shutdown error", "error", err)
		}
	}
	return nil
}
