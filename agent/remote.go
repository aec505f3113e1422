package agent

import (
	"context"
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

	"github.com/ashita-ai/enso/payload"
)

// DefaultRemoteTimeout bounds a remote agent invocation. The target may be
// doing long-running work, so the bound is generous; a timeout surfaces as
// an InvocationError, never a retry.
const DefaultRemoteTimeout = 5 * time.Minute

// InvocationError reports a failed remote agent invocation. Detail carries
// the target's decoded response body when one was available.
type InvocationError struct {
	AgentID string
	Status  int
	Detail  string
	Err     error
}

func (e *InvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent: invoke %s: %v", e.AgentID, e.Err)
	}
	return fmt.Sprintf("agent: invoke %s: status %d: %s", e.AgentID, e.Status, e.Detail)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// RemoteResponse is the result of a remote invocation: the target's body
// wrapped as Data plus metadata reconstructed from reserved-prefix
// response headers.
type RemoteResponse struct {
	Data     *payload.Data
	Metadata map[string]any
}

// ContentType returns the response body's content type.
func (r *RemoteResponse) ContentType() string { return r.Data.ContentType() }

// Remote invokes one agent of this process over loopback HTTP.
type Remote struct {
	config  Config
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

// NewRemote creates a Remote for the agent described by config, reachable
// under baseURL (e.g. "http://127.0.0.1:3500"). A nil httpClient gets the
// default timeout; a nil tracer falls back to the global one.
func NewRemote(config Config, baseURL string, httpClient *http.Client, tracer trace.Tracer) *Remote {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRemoteTimeout}
	}
	if tracer == nil {
		tracer = otel.Tracer("enso/agent")
	}
	return &Remote{
		config:  config,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		tracer:  tracer,
	}
}

// Config returns the target agent's configuration.
func (r *Remote) Config() Config { return r.config }

// Run invokes the target agent, streaming data's byte source as the
// request body without materializing it. Metadata travels as
// reserved-prefix headers and trace context is injected.
func (r *Remote) Run(ctx context.Context, data *payload.Data, metadata map[string]any) (*RemoteResponse, error) {
	ctx, span := r.tracer.Start(ctx, "enso.agent.run", trace.WithAttributes(
		attribute.String("agent.id", r.config.ID),
		attribute.String("agent.name", r.config.Name),
	))
	defer span.End()

	body, err := data.Reader()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &InvocationError{AgentID: r.config.ID, Err: err}
	}

	u := r.baseURL + "/" + r.config.ID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, &InvocationError{AgentID: r.config.ID, Err: err}
	}
	req.Header.Set("Content-Type", data.ContentType())
	req.Header.Set(HeaderTrigger, TriggerAgent)
	SetMetadataHeaders(req.Header, metadata)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &InvocationError{AgentID: r.config.ID, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		err := &InvocationError{
			AgentID: r.config.ID,
			Status:  resp.StatusCode,
			Detail:  strings.TrimSpace(string(detail)),
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	return &RemoteResponse{
		Data:     payload.New(ct, resp.Body),
		Metadata: MetadataFromHeaders(resp.Header),
	}, nil
}
