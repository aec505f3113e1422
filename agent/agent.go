// Package agent defines the invocation model for agent handlers: the
// request/response pair handed to a handler, the per-invocation context,
// the immutable registry of agents known to the process, and remote
// agent-to-agent invocation over loopback HTTP.
package agent

import (
	"context"
	"errors"
	"fmt"
)

// Config is the read-only description of one agent.
type Config struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Filename    string `json:"filename,omitempty" yaml:"filename,omitempty"`

	// Cloud identifiers, present when the agent is deployed.
	OrgID         string `json:"orgId,omitempty" yaml:"orgId,omitempty"`
	ProjectID     string `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	TransactionID string `json:"transactionId,omitempty" yaml:"transactionId,omitempty"`
}

// Handler is a user-authored agent function. It reads the inbound request,
// produces output through the response builder (or by returning a value
// the dispatcher can serialize), and reaches services through the context.
type Handler func(ctx context.Context, req *Request, res *Response, ac *Context) (any, error)

// Welcome is optional onboarding metadata an agent exposes on the welcome
// endpoint.
type Welcome struct {
	// Welcome is the onboarding prompt text shown to new users.
	Welcome string `json:"welcome,omitempty"`

	// Prompts are example payloads a caller can send to the agent.
	Prompts []Example `json:"prompts,omitempty"`
}

// Example is one example payload with its content type.
type Example struct {
	Data        string `json:"data"`
	ContentType string `json:"contentType,omitempty"`
}

// Registration binds an agent's configuration to its handler.
type Registration struct {
	Config  Config
	Handler Handler
	Welcome *Welcome
}

var (
	// ErrInvalidSelector is returned when a handoff selector carries
	// neither an id nor a name.
	ErrInvalidSelector = errors.New("agent: selector must have an id or a name")

	// ErrNotFound is returned when no registered agent matches a selector.
	ErrNotFound = errors.New("agent: not found by id or name")
)

// Selector identifies a handoff target by id or name. ID wins when both
// are set.
type Selector struct {
	ID   string
	Name string
}

// Registry is the process-wide id-to-agent mapping. It is built once at
// startup and never mutated, so lookups need no synchronization.
type Registry struct {
	byID  map[string]*Registration
	order []string
}

// NewRegistry builds a registry from registrations. Every registration
// needs a non-empty id and a handler; duplicate ids are rejected.
func NewRegistry(regs []Registration) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Registration, len(regs))}
	for i := range regs {
		reg := regs[i]
		if reg.Config.ID == "" {
			return nil, fmt.Errorf("agent: registration %q has no id", reg.Config.Name)
		}
		if reg.Handler == nil {
			return nil, fmt.Errorf("agent: registration %q has no handler", reg.Config.ID)
		}
		if _, dup := r.byID[reg.Config.ID]; dup {
			return nil, fmt.Errorf("agent: duplicate id %q", reg.Config.ID)
		}
		r.byID[reg.Config.ID] = &reg
		r.order = append(r.order, reg.Config.ID)
	}
	return r, nil
}

// Get looks up an agent by id.
func (r *Registry) Get(id string) (*Registration, bool) {
	reg, ok := r.byID[id]
	return reg, ok
}

// Resolve finds a handoff target: exact id match first, then the first
// agent whose name matches, in registration order.
func (r *Registry) Resolve(sel Selector) (*Registration, error) {
	if sel.ID == "" && sel.Name == "" {
		return nil, ErrInvalidSelector
	}
	if sel.ID != "" {
		if reg, ok := r.byID[sel.ID]; ok {
			return reg, nil
		}
	}
	if sel.Name != "" {
		for _, id := range r.order {
			if r.byID[id].Config.Name == sel.Name {
				return r.byID[id], nil
			}
		}
	}
	return nil, ErrNotFound
}

// Configs returns the configurations of all registered agents in
// registration order.
func (r *Registry) Configs() []Config {
	configs := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		configs = append(configs, r.byID[id].Config)
	}
	return configs
}

// Len returns the number of registered agents.
func (r *Registry) Len() int { return len(r.order) }
