package agent

import (
	"errors"
	"io"

	"github.com/ashita-ai/enso/payload"
)

// ErrInvalidRequest is returned by Validate when the request has no
// trigger.
var ErrInvalidRequest = errors.New("agent: request must have a trigger")

// Request is the inbound trigger, metadata, and body handed to a handler.
// It is immutable after construction and lives for one invocation.
type Request struct {
	trigger  string
	metadata map[string]any
	data     *payload.Data
}

// NewRequest constructs a request around an unconsumed body stream.
func NewRequest(trigger string, metadata map[string]any, contentType string, body io.Reader) *Request {
	return &Request{
		trigger:  trigger,
		metadata: metadata,
		data:     payload.New(contentType, body),
	}
}

// NewRequestData constructs a request around an existing Data.
func NewRequestData(trigger string, metadata map[string]any, data *payload.Data) *Request {
	return &Request{trigger: trigger, metadata: metadata, data: data}
}

// Trigger returns the string classifying how the invocation was initiated.
func (r *Request) Trigger() string { return r.trigger }

// Metadata returns the full metadata mapping. Callers must treat it as
// read-only.
func (r *Request) Metadata() map[string]any { return r.metadata }

// Get returns one metadata value, or nil when absent.
func (r *Request) Get(key string) any {
	return r.metadata[key]
}

// Data returns the request body.
func (r *Request) Data() *payload.Data { return r.data }

// Validate checks the request's required fields. The trigger is the only
// one; the content type is permitted to default.
func (r *Request) Validate() error {
	if r.trigger == "" {
		return ErrInvalidRequest
	}
	return nil
}
