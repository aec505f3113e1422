package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/enso/payload"
)

// Transform rewrites one stream element before it is encoded. Returning
// nil closes the stream early, same as a nil element from the source.
type Transform func(any) any

// respBody is the closed set of response states. Exactly one is active;
// every producing method replaces the previous state entirely.
type respBody interface{ isRespBody() }

type emptyBody struct{}

type materializedBody struct {
	contentType string
	data        []byte
}

type streamBody struct {
	source    iter.Seq[any]
	transform Transform
}

func (emptyBody) isRespBody()        {}
func (materializedBody) isRespBody() {}
func (streamBody) isRespBody()       {}

// HandoffError reports a failed handoff to another agent. Detail carries
// the target's response body when one was available.
type HandoffError struct {
	Target string
	Detail string
	Err    error
}

func (e *HandoffError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("agent: handoff to %s failed: %s", e.Target, e.Detail)
	}
	return fmt.Sprintf("agent: handoff to %s failed: %v", e.Target, e.Err)
}

func (e *HandoffError) Unwrap() error { return e.Err }

// Response is the chainable builder a handler uses to produce output. A
// nil-bodied response is "untouched": the dispatcher falls back to the
// handler's return value, or to 204 when there is none. Producing methods
// are last-write-wins; the internal state is a single tagged union, so a
// later call structurally discards the earlier one.
//
// A Response is owned by a single invocation and is not safe for
// concurrent use.
type Response struct {
	metadata map[string]any
	body     respBody
	err      error

	// Handoff dependencies, wired by the dispatcher.
	request    *Request
	registry   *Registry
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// ResponseDeps carries what a Response needs to perform handoffs.
type ResponseDeps struct {
	Request    *Request
	Registry   *Registry
	BaseURL    string
	HTTPClient *http.Client
	Tracer     trace.Tracer
}

// NewResponse creates an untouched response for one invocation.
func NewResponse(deps ResponseDeps) *Response {
	return &Response{
		request:    deps.Request,
		registry:   deps.Registry,
		baseURL:    deps.BaseURL,
		httpClient: deps.HTTPClient,
		tracer:     deps.Tracer,
	}
}

func firstMetadata(metadata []map[string]any) map[string]any {
	if len(metadata) > 0 {
		return metadata[0]
	}
	return nil
}

// set replaces the body and metadata in one step.
func (r *Response) set(body respBody, metadata []map[string]any) *Response {
	r.body = body
	r.metadata = firstMetadata(metadata)
	return r
}

// Text produces a text/plain response.
func (r *Response) Text(text string, metadata ...map[string]any) *Response {
	return r.set(materializedBody{contentType: "text/plain", data: []byte(text)}, metadata)
}

// HTML produces a text/html response.
func (r *Response) HTML(html string, metadata ...map[string]any) *Response {
	return r.set(materializedBody{contentType: "text/html", data: []byte(html)}, metadata)
}

// Markdown produces a text/markdown response.
func (r *Response) Markdown(md string, metadata ...map[string]any) *Response {
	return r.set(materializedBody{contentType: "text/markdown", data: []byte(md)}, metadata)
}

// JSON produces an application/json response. The value is encoded with
// the payload codec; an encoding failure is latched and surfaced when the
// dispatcher serializes the response.
func (r *Response) JSON(value any, metadata ...map[string]any) *Response {
	_, b, err := payload.ValueToPayload("application/json", value)
	if err != nil {
		r.err = err
		return r.set(emptyBody{}, metadata)
	}
	return r.set(materializedBody{contentType: "application/json", data: b}, metadata)
}

// Binary produces a response with the given bytes and content type.
func (r *Response) Binary(data []byte, contentType string, metadata ...map[string]any) *Response {
	if contentType == "" {
		contentType = payload.DefaultContentType
	}
	return r.set(materializedBody{contentType: contentType, data: data}, metadata)
}

// Media shortcuts, all delegating to Binary with a fixed content type.

func (r *Response) PDF(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "application/pdf", metadata...)
}

func (r *Response) PNG(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "image/png", metadata...)
}

func (r *Response) JPEG(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "image/jpeg", metadata...)
}

func (r *Response) GIF(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "image/gif", metadata...)
}

func (r *Response) WebP(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "image/webp", metadata...)
}

func (r *Response) WebM(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "video/webm", metadata...)
}

func (r *Response) MP3(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "audio/mpeg", metadata...)
}

func (r *Response) MP4(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "video/mp4", metadata...)
}

func (r *Response) M4A(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "audio/m4a", metadata...)
}

func (r *Response) WAV(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "audio/wav", metadata...)
}

func (r *Response) OGG(data []byte, metadata ...map[string]any) *Response {
	return r.Binary(data, "audio/ogg", metadata...)
}

// Empty produces a bodiless response carrying only metadata.
func (r *Response) Empty(metadata ...map[string]any) *Response {
	return r.set(emptyBody{}, metadata)
}

// Stream marks the response as streaming from source. Each element is run
// through transform (identity when omitted) and encoded to raw bytes; a
// nil element closes the stream early.
func (r *Response) Stream(source iter.Seq[any], transform ...Transform) *Response {
	t := Transform(nil)
	if len(transform) > 0 {
		t = transform[0]
	}
	r.body = streamBody{source: source, transform: t}
	return r
}

// Handoff transfers this invocation's output to another agent. With nil
// args the original inbound payload and metadata are forwarded verbatim;
// otherwise args is encoded through the payload codec and metadata, when
// given, replaces the original. On success the response adopts the
// target's content type, payload, and metadata, discarding any prior
// builder state.
func (r *Response) Handoff(ctx context.Context, sel Selector, args any, metadata map[string]any) error {
	target, err := r.registry.Resolve(sel)
	if err != nil {
		return err
	}

	var data *payload.Data
	md := metadata
	if md == nil {
		// Explicit metadata replaces the original; absence keeps it.
		md = r.request.Metadata()
	}
	if args == nil {
		data = r.request.Data()
	} else {
		ct, b, err := payload.ValueToPayload("", args)
		if err != nil {
			return err
		}
		data = payload.FromBytes(ct, b)
	}

	remote := NewRemote(target.Config, r.baseURL, r.httpClient, r.tracer)
	result, err := remote.Run(ctx, data, md)
	if err != nil {
		herr := &HandoffError{Target: target.Config.ID, Err: err}
		var inv *InvocationError
		if errors.As(err, &inv) {
			herr.Detail = inv.Detail
		}
		return herr
	}

	body, err := result.Data.Binary()
	if err != nil {
		return &HandoffError{Target: target.Config.ID, Err: err}
	}
	r.body = materializedBody{contentType: result.ContentType(), data: body}
	r.metadata = result.Metadata
	return nil
}

// Err returns the first error latched by a producing method.
func (r *Response) Err() error { return r.err }

// Metadata returns the response metadata mapping, which may be nil.
func (r *Response) Metadata() map[string]any { return r.metadata }

// Touched reports whether any producing method has run.
func (r *Response) Touched() bool { return r.body != nil }

// IsStream reports whether the response is in the streaming state.
func (r *Response) IsStream() bool {
	_, ok := r.body.(streamBody)
	return ok
}

// Payload returns the materialized body, when the response is in that
// state.
func (r *Response) Payload() (contentType string, data []byte, ok bool) {
	m, ok := r.body.(materializedBody)
	if !ok {
		return "", nil, false
	}
	return m.contentType, m.data, true
}

// Chunks yields the stream's encoded chunks in source order. A nil element
// (from the source or from the transform) ends iteration before the source
// is exhausted; the transport treats that as an explicit close, not an
// error. Chunks yields nothing when the response is not streaming.
func (r *Response) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		s, ok := r.body.(streamBody)
		if !ok {
			return
		}
		for v := range s.source {
			if v == nil {
				return
			}
			if s.transform != nil {
				v = s.transform(v)
				if v == nil {
					return
				}
			}
			b, err := chunkBytes(v)
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}

// chunkBytes encodes one stream element to raw bytes.
func chunkBytes(v any) ([]byte, error) {
	switch c := v.(type) {
	case []byte:
		return c, nil
	case string:
		return []byte(c), nil
	default:
		_, b, err := payload.ValueToPayload("", v)
		return b, err
	}
}
