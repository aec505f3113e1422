// Command enso hosts a small demo agent project. Real projects import the
// enso package directly and register their own handlers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ashita-ai/enso"
	"github.com/ashita-ai/enso/agent"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("ENSO_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	app, err := enso.New(
		enso.WithLogger(logger),
		enso.WithVersion(version),
		enso.WithAgent(enso.AgentConfig{
			ID:          "agent_hello",
			Name:        "hello",
			Description: "Greets whoever calls it.",
		}, hello),
		enso.WithWelcome(enso.Welcome{
			Welcome: "Send me a name and I will greet it.",
			Prompts: []agent.Example{
				{Data: "world", ContentType: "text/plain"},
			},
		}),
	)
	if err != nil {
		return fmt.Errorf("enso: %w", err)
	}

	return app.Run(ctx)
}

func hello(ctx context.Context, req *agent.Request, res *agent.Response, ac *agent.Context) (any, error) {
	name, err := req.Data().Text()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "world"
	}
	ac.Logger.Info("greeting", "name", name)
	return res.Text("Hello, " + name + "!"), nil
}
