package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/enso/agent"
	"github.com/ashita-ai/enso/payload"
)

// DefaultTrigger classifies invocations that arrive without a trigger
// header.
const DefaultTrigger = "manual"

// ContextFactory builds the per-invocation capability bag for one agent.
// The factory closes over process-wide dependencies (service clients,
// logger, tracer, identifiers); run id and scope vary per request.
type ContextFactory func(runID, scope string, cfg agent.Config) *agent.Context

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	registry            *agent.Registry
	newContext          ContextFactory
	logger              *slog.Logger
	startedAt           time.Time
	port                int
	baseURL             string
	version             string
	maxRequestBodyBytes int64
	agentClient         *http.Client
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Registry            *agent.Registry
	NewContext          ContextFactory
	Logger              *slog.Logger
	Port                int
	Version             string
	MaxRequestBodyBytes int64
	AgentTimeout        time.Duration
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	timeout := d.AgentTimeout
	if timeout <= 0 {
		timeout = agent.DefaultRemoteTimeout
	}
	return &Handlers{
		registry:            d.Registry,
		newContext:          d.NewContext,
		logger:              d.Logger,
		startedAt:           time.Now(),
		port:                d.Port,
		baseURL:             fmt.Sprintf("http://127.0.0.1:%d", d.Port),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		agentClient:         &http.Client{Timeout: timeout},
	}
}

// SetBaseURL overrides the loopback URL used for agent-to-agent handoffs.
// Tests point it at an httptest server.
func (h *Handlers) SetBaseURL(u string) { h.baseURL = u }

// HandleInvoke handles POST /{agent_id}: it resolves the target agent,
// reconstructs the request from the reserved-prefix headers and raw body,
// runs the handler, and writes whatever the handler produced.
func (h *Handlers) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.registry.Get(r.PathValue("agent_id"))
	if !ok {
		writeText(w, http.StatusNotFound, "not found")
		return
	}

	trigger := r.Header.Get(agent.HeaderTrigger)
	if trigger == "" {
		trigger = DefaultTrigger
	}
	metadata := agent.MetadataFromHeaders(r.Header)
	runID, scope := invocationIdentity(r.Header, metadata)

	contentType := r.Header.Get("Content-Type")
	body := http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	req := agent.NewRequest(trigger, metadata, contentType, body)

	ac := h.newContext(runID, scope, reg.Config)
	res := agent.NewResponse(agent.ResponseDeps{
		Request:    req,
		Registry:   h.registry,
		BaseURL:    h.baseURL,
		HTTPClient: h.agentClient,
		Tracer:     ac.Tracer,
	})

	span := trace.SpanFromContext(r.Context())
	h.logger.Debug("invoking agent",
		"agent_id", reg.Config.ID,
		"agent_name", reg.Config.Name,
		"trigger", trigger,
		"run_id", runID,
	)

	result, err := reg.Handler(r.Context(), req, res, ac)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("agent handler failed",
			"agent_id", reg.Config.ID,
			"run_id", runID,
			"error", err,
		)
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeResult(w, r, res, result)
}

// invocationIdentity derives the run id and scope from the reserved headers,
// falling back to the metadata bundle, generating a fresh run id when absent.
func invocationIdentity(header http.Header, metadata map[string]any) (runID, scope string) {
	runID = header.Get(agent.HeaderRunID)
	scope = header.Get(agent.HeaderScope)
	if runID == "" {
		if v, ok := metadata["runId"].(string); ok {
			runID = v
		}
	}
	if scope == "" {
		if v, ok := metadata["scope"].(string); ok {
			scope = v
		}
	}
	if runID == "" {
		runID = uuid.New().String()
	}
	return runID, scope
}

// writeResult serializes whatever the handler produced. A response the
// handler touched wins unless the handler returned a distinct value; a nil
// result with an untouched response yields 204.
func (h *Handlers) writeResult(w http.ResponseWriter, r *http.Request, res *agent.Response, result any) {
	switch v := result.(type) {
	case nil:
		// Fall through to the response builder below.
	case *agent.Response:
		res = v
	case *agent.RemoteResponse:
		agent.SetMetadataHeaders(w.Header(), v.Metadata)
		h.writeData(w, r, v.Data)
		return
	case *payload.Data:
		h.writeData(w, r, v)
		return
	default:
		ct, data, err := payload.ValueToPayload("", v)
		if err != nil {
			trace.SpanFromContext(r.Context()).RecordError(err)
			writeText(w, http.StatusInternalServerError, "unsupported response type")
			return
		}
		agent.SetMetadataHeaders(w.Header(), res.Metadata())
		writeBody(w, ct, data)
		return
	}

	if !res.Touched() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	agent.SetMetadataHeaders(w.Header(), res.Metadata())
	if res.IsStream() {
		h.writeStream(w, r, res)
		return
	}
	if ct, data, ok := res.Payload(); ok {
		writeBody(w, ct, data)
		return
	}
	// Explicitly empty.
	w.WriteHeader(http.StatusNoContent)
}

// writeData materializes a Data payload onto the wire.
func (h *Handlers) writeData(w http.ResponseWriter, r *http.Request, d *payload.Data) {
	raw, err := d.Binary()
	if err != nil {
		trace.SpanFromContext(r.Context()).RecordError(err)
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(raw) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeBody(w, d.ContentType(), raw)
}

// writeStream writes the response's chunks in source order, flushing each
// one. Clients that ask for text/event-stream get SSE framing; everyone
// else gets the raw chunks on a chunked connection.
func (h *Handlers) writeStream(w http.ResponseWriter, r *http.Request, res *agent.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeText(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sse := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	if sse {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived response.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ctx := r.Context()
	for chunk, err := range res.Chunks() {
		if err != nil {
			// Headers are gone; all we can do is record and stop.
			trace.SpanFromContext(ctx).RecordError(err)
			h.logger.Error("stream chunk failed", "error", err)
			return
		}
		if ctx.Err() != nil {
			// Client went away; breaking out of the range terminates
			// the producer.
			return
		}
		if sse {
			if _, err := fmt.Fprintf(w, "data: %s\n\n", chunk); err != nil {
				return
			}
		} else {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
		flusher.Flush()
	}
	if sse {
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

// writeBody writes a materialized payload with its content type.
func writeBody(w http.ResponseWriter, contentType string, data []byte) {
	if contentType == "" {
		contentType = payload.DefaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleIndex handles GET /: a human-readable listing of the agent routes
// this process serves.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("The following agent routes are available:\n\n")
	for _, cfg := range h.registry.Configs() {
		fmt.Fprintf(&b, "POST /%s - [%s]\n", cfg.ID, cfg.Name)
	}
	if configs := h.registry.Configs(); len(configs) > 0 {
		fmt.Fprintf(&b, "\nExample usage:\n\n  curl http://localhost:%d/%s \\\n    --json '{\"input\": \"Hello, world!\"}'\n", h.port, configs[0].ID)
	}
	writeText(w, http.StatusOK, b.String())
}

// HandleHealth handles GET /_health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "healthy",
		"version":        h.version,
		"agents":         h.registry.Len(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// welcomeEntry is the wire form of one agent's welcome metadata.
type welcomeEntry struct {
	Welcome string          `json:"welcome,omitempty"`
	Prompts []welcomePrompt `json:"prompts,omitempty"`
}

type welcomePrompt struct {
	Data        string `json:"data"`
	ContentType string `json:"contentType"`
}

// HandleWelcome handles GET /welcome and GET /welcome/{agent_id}: the
// welcome prompt and example payloads used by interactive clients.
func (h *Handlers) HandleWelcome(w http.ResponseWriter, r *http.Request) {
	if id := r.PathValue("agent_id"); id != "" {
		reg, ok := h.registry.Get(id)
		if !ok {
			writeText(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, encodeWelcome(reg.Welcome))
		return
	}

	out := make(map[string]welcomeEntry)
	for _, cfg := range h.registry.Configs() {
		reg, _ := h.registry.Get(cfg.ID)
		out[cfg.ID] = encodeWelcome(reg.Welcome)
	}
	writeJSON(w, http.StatusOK, out)
}

// encodeWelcome prepares welcome metadata for the wire. Example payloads
// with textual, JSON, image, audio, or video content types are
// base64-encoded; anything else is passed through as UTF-8.
func encodeWelcome(wel *agent.Welcome) welcomeEntry {
	if wel == nil {
		return welcomeEntry{}
	}
	entry := welcomeEntry{Welcome: wel.Welcome}
	for _, ex := range wel.Prompts {
		ct := ex.ContentType
		if ct == "" {
			ct = "text/plain"
		}
		data := ex.Data
		if encodableContentType(ct) {
			data = base64.StdEncoding.EncodeToString([]byte(ex.Data))
		}
		entry.Prompts = append(entry.Prompts, welcomePrompt{Data: data, ContentType: ct})
	}
	return entry
}

func encodableContentType(ct string) bool {
	switch {
	case strings.HasPrefix(ct, "text/"),
		strings.HasPrefix(ct, "image/"),
		strings.HasPrefix(ct, "audio/"),
		strings.HasPrefix(ct, "video/"),
		ct == "application/json",
		strings.HasSuffix(ct, "+json"):
		return true
	}
	return false
}

// HandlePreflight answers CORS preflight requests; the CORS headers are
// already set by the middleware.
func (h *Handlers) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
