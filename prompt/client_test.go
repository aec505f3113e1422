package prompt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCompile(t *testing.T) {
	var gotReq map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /prompt/2025-03-17/compile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"compiledContent": "Hello Alice!",
				"promptId":        "prompt_123",
				"version":         2,
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	result, err := c.Compile(context.Background(), "greeting", map[string]any{"name": "Alice"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "Hello Alice!", result.CompiledContent)
	assert.Equal(t, "prompt_123", result.PromptID)
	assert.Equal(t, 2, result.Version)

	assert.Equal(t, "greeting", gotReq["name"])
	assert.Equal(t, float64(2), gotReq["version"])
}

func TestClientCompileFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "prompt not found",
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	_, err = c.Compile(context.Background(), "missing", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt not found")
}

func TestClientCompileValidation(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k"})
	require.NoError(t, err)

	_, err = c.Compile(context.Background(), "", nil, 0)
	assert.Error(t, err)
	_, err = c.Compile(context.Background(), "x", nil, -1)
	assert.Error(t, err)
}
