package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: serverURL, APIKey: "test-key"})
	require.NoError(t, err)
	return c
}

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func TestUpsert(t *testing.T) {
	var gotBody []Document
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /sdk/vector/notes", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeEnvelope(w, []map[string]string{{"id": "vec_1"}, {"id": "vec_2"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ids, err := c.Upsert(context.Background(), "notes", []Document{
		{Key: "a", Document: "first note"},
		{Key: "b", Embeddings: []float32{0.1, 0.2}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vec_1", "vec_2"}, ids)
	require.Len(t, gotBody, 2)
	assert.Equal(t, "a", gotBody[0].Key)
}

func TestUpsertValidationBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Upsert(context.Background(), "notes", []Document{{Document: "no key"}})
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = c.Upsert(context.Background(), "notes", []Document{{Key: "k"}})
	assert.ErrorIs(t, err, ErrInvalidDocument)

	assert.Zero(t, calls.Load())
}

func TestGetMissReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	results, err := c.Get(context.Background(), "notes", "missing")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch(t *testing.T) {
	var gotReq map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sdk/vector/search/notes", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeEnvelope(w, []SearchResult{
			{ID: "vec_1", Key: "a", Distance: 0.92},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	results, err := c.Search(context.Background(), "notes", "first", &SearchOptions{
		Limit:      3,
		Similarity: 0.8,
		Metadata:   map[string]any{"lang": "en"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Key)
	assert.InDelta(t, 0.92, results[0].Distance, 1e-9)

	assert.Equal(t, "first", gotReq["query"])
	assert.Equal(t, float64(3), gotReq["limit"])
	assert.Equal(t, 0.8, gotReq["similarity"])
}

func TestSearchDefaults(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeEnvelope(w, []SearchResult{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), "notes", "q", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(10), gotReq["limit"])
	assert.Equal(t, 0.5, gotReq["similarity"])
}

func TestSearchBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "index rebuilding"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), "notes", "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index rebuilding")
}

func TestDeleteCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeEnvelope(w, 2)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	count, err := c.Delete(context.Background(), "notes", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
