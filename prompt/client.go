// Package prompt provides the cloud prompt-compilation client and a
// versioned prompt library persisted in the key-value store.
package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/enso/internal/version"
)

// apiVersion pins the compile endpoint revision.
const apiVersion = "2025-03-17"

// CompileResult is a prompt compiled by the cloud service.
type CompileResult struct {
	CompiledContent string
	PromptID        string
	Version         int
}

func (r CompileResult) String() string { return r.CompiledContent }

// Config holds the settings needed to construct a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Tracer     trace.Tracer
}

// Client compiles prompt templates through the cloud prompt service.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	tracer  trace.Tracer
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("prompt: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("prompt: APIKey is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("enso/prompt")
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
		tracer:  tracer,
	}, nil
}

type compileRequest struct {
	Name      string         `json:"name"`
	Variables map[string]any `json:"variables"`
	Version   int            `json:"version,omitempty"`
}

type compileResponse struct {
	Success bool `json:"success"`
	Data    struct {
		CompiledContent string `json:"compiledContent"`
		PromptID        string `json:"promptId"`
		Version         int    `json:"version"`
	} `json:"data"`
	Error string `json:"error"`
}

// Compile substitutes variables into the named template server-side.
// Version 0 compiles the active version.
func (c *Client) Compile(ctx context.Context, name string, variables map[string]any, promptVersion int) (*CompileResult, error) {
	ctx, span := c.tracer.Start(ctx, "enso.prompt.compile", trace.WithAttributes(
		attribute.String("prompt.name", name),
		attribute.Int("prompt.variables_count", len(variables)),
	))
	defer span.End()

	if name == "" {
		err := fmt.Errorf("prompt: name is required")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if promptVersion < 0 {
		err := fmt.Errorf("prompt: version must be positive")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	body, err := json.Marshal(compileRequest{Name: name, Variables: variables, Version: promptVersion})
	if err != nil {
		return nil, fmt.Errorf("prompt: encode request: %w", err)
	}

	u := fmt.Sprintf("%s/prompt/%s/compile", c.baseURL, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("prompt: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("prompt: compile %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("prompt: read response: %w", err)
	}

	var out compileResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		span.SetStatus(codes.Error, "invalid response")
		return nil, fmt.Errorf("prompt: invalid response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		span.SetStatus(codes.Error, msg)
		return nil, fmt.Errorf("prompt: compile %s failed (status %d): %s", name, resp.StatusCode, msg)
	}

	span.SetAttributes(
		attribute.String("prompt.id", out.Data.PromptID),
		attribute.Int("prompt.compiled_version", out.Data.Version),
	)
	return &CompileResult{
		CompiledContent: out.Data.CompiledContent,
		PromptID:        out.Data.PromptID,
		Version:         out.Data.Version,
	}, nil
}
