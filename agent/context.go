package agent

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/enso/keyvalue"
	"github.com/ashita-ai/enso/prompt"
	"github.com/ashita-ai/enso/vector"
)

// Context is the per-invocation capability bag passed to a handler. It is
// constructed once per invocation; all fields are read-only after
// construction.
type Context struct {
	// Service handles. Nil when the process has no cloud credentials
	// (local development without ENSO_API_KEY).
	KV      *keyvalue.Client
	Vector  *vector.Client
	Prompts *prompt.Library

	// Environment-derived identifiers.
	SDKVersion   string
	OrgID        string
	ProjectID    string
	DeploymentID string
	Environment  string
	DevMode      bool

	// Invocation identifiers, taken from the reserved headers or
	// generated when absent.
	RunID string
	Scope string

	// Observability capabilities.
	Logger *slog.Logger
	Tracer trace.Tracer

	// Agent is the configuration of the agent being invoked; Agents lists
	// every agent known to this process.
	Agent  Config
	Agents []Config
}
