package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Reserved header namespace. Any inbound header under this prefix is
// treated as request metadata; the same headers carry metadata back on
// responses and across agent-to-agent calls.
const (
	// HeaderTrigger classifies how the invocation was initiated
	// (manual, webhook, agent, ...).
	HeaderTrigger = "X-Enso-Trigger"

	// HeaderMetadata carries a JSON-encoded metadata bundle. It takes
	// precedence over individual X-Enso-Meta-* headers and may also set
	// the run id and scope.
	HeaderMetadata = "X-Enso-Metadata"

	// HeaderRunID carries the invocation's run id.
	HeaderRunID = "X-Enso-Run-Id"

	// HeaderScope carries the invocation scope.
	HeaderScope = "X-Enso-Scope"

	// MetaHeaderPrefix namespaces individual metadata keys.
	MetaHeaderPrefix = "X-Enso-Meta-"
)

// TriggerAgent is the trigger value for agent-to-agent invocations.
const TriggerAgent = "agent"

// MetadataFromHeaders reconstructs a metadata mapping from reserved-prefix
// headers. Individual X-Enso-Meta-* keys are collected first (lowercased);
// a HeaderMetadata JSON bundle, when present and valid, takes precedence
// key by key.
func MetadataFromHeaders(h http.Header) map[string]any {
	md := make(map[string]any)
	for name, values := range h {
		if !strings.HasPrefix(name, MetaHeaderPrefix) || len(values) == 0 {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, MetaHeaderPrefix))
		md[key] = values[0]
	}
	if bundle := h.Get(HeaderMetadata); bundle != "" {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(bundle), &decoded); err == nil {
			for k, v := range decoded {
				md[k] = v
			}
		}
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// SetMetadataHeaders writes a metadata mapping to reserved-prefix headers:
// scalar values as individual X-Enso-Meta-* headers plus the full mapping
// as a JSON bundle.
func SetMetadataHeaders(h http.Header, md map[string]any) {
	if len(md) == 0 {
		return
	}
	for k, v := range md {
		switch v.(type) {
		case string, bool, int, int64, float64:
			h.Set(MetaHeaderPrefix+http.CanonicalHeaderKey(k), fmt.Sprint(v))
		}
	}
	if bundle, err := json.Marshal(md); err == nil {
		h.Set(HeaderMetadata, string(bundle))
	}
}
