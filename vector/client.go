// Package vector provides the HTTP client for the cloud vector store.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/enso/internal/version"
)

// ErrInvalidDocument is returned by Upsert before any I/O when a document
// is missing its key or both content and embeddings.
var ErrInvalidDocument = errors.New("vector: document must have a key and either a document or embeddings")

// Document is one entry to upsert into a collection. Key is required;
// either Document (raw content, embedded server-side) or Embeddings must be
// set.
type Document struct {
	Key        string         `json:"key"`
	Document   string         `json:"document,omitempty"`
	Embeddings []float32      `json:"embeddings,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResult is one match returned by Get or Search. Distance ranges
// from 0.0 to 1.0.
type SearchResult struct {
	ID       string         `json:"id"`
	Key      string         `json:"key"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchOptions are the optional parameters of Search.
type SearchOptions struct {
	Limit      int            // default 10
	Similarity float64        // minimum similarity threshold, default 0.5
	Metadata   map[string]any // metadata filter
}

// Config holds the settings needed to construct a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Tracer     trace.Tracer
}

// Client is an HTTP client for the vector store API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	tracer  trace.Tracer
}

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vector: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vector: APIKey is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("enso/vector")
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
		tracer:  tracer,
	}, nil
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Upsert inserts or replaces documents in a collection and returns the ids
// assigned by the backend.
func (c *Client) Upsert(ctx context.Context, collection string, documents []Document) ([]string, error) {
	ctx, span := c.tracer.Start(ctx, "enso.vector.upsert", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("documents", len(documents)),
	))
	defer span.End()

	for _, doc := range documents {
		if doc.Key == "" || (doc.Document == "" && len(doc.Embeddings) == 0) {
			span.SetStatus(codes.Error, ErrInvalidDocument.Error())
			return nil, ErrInvalidDocument
		}
	}

	env, err := c.doJSON(ctx, http.MethodPut,
		fmt.Sprintf("%s/sdk/vector/%s", c.baseURL, url.PathEscape(collection)), documents)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var docs []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &docs); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("vector: decode upsert response: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	span.SetAttributes(attribute.Int("upserted", len(ids)))
	return ids, nil
}

// Get retrieves vectors by key. A miss returns an empty slice.
func (c *Client) Get(ctx context.Context, collection, key string) ([]SearchResult, error) {
	ctx, span := c.tracer.Start(ctx, "enso.vector.get", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("key", key),
	))
	defer span.End()

	env, err := c.doJSON(ctx, http.MethodGet, c.keyURL(collection, key), nil)
	if errors.Is(err, errNotFound) {
		span.AddEvent("miss")
		return nil, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return decodeResults(env.Data)
}

// Search performs a semantic similarity search over a collection. A miss
// returns an empty slice.
func (c *Client) Search(ctx context.Context, collection, query string, opts *SearchOptions) ([]SearchResult, error) {
	limit := 10
	similarity := 0.5
	var metadata map[string]any
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		if opts.Similarity > 0 {
			similarity = opts.Similarity
		}
		metadata = opts.Metadata
	}

	ctx, span := c.tracer.Start(ctx, "enso.vector.search", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("query", query),
		attribute.Int("limit", limit),
		attribute.Float64("similarity", similarity),
	))
	defer span.End()

	body := map[string]any{
		"query":      query,
		"limit":      limit,
		"similarity": similarity,
		"metadata":   metadata,
	}
	env, err := c.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/sdk/vector/search/%s", c.baseURL, url.PathEscape(collection)), body)
	if errors.Is(err, errNotFound) {
		span.AddEvent("miss")
		return nil, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return decodeResults(env.Data)
}

// Delete removes vectors by key and returns the number deleted.
func (c *Client) Delete(ctx context.Context, collection, key string) (int, error) {
	ctx, span := c.tracer.Start(ctx, "enso.vector.delete", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("key", key),
	))
	defer span.End()

	env, err := c.doJSON(ctx, http.MethodDelete, c.keyURL(collection, key), nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	var count int
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &count); err != nil {
			return 0, fmt.Errorf("vector: decode delete response: %w", err)
		}
	}
	span.SetAttributes(attribute.Int("deleted", count))
	return count, nil
}

func (c *Client) keyURL(collection, key string) string {
	return fmt.Sprintf("%s/sdk/vector/%s/%s",
		c.baseURL, url.PathEscape(collection), url.PathEscape(key))
}

var errNotFound = errors.New("vector: not found")

// doJSON issues a request with the standard headers, optionally with a JSON
// body, and decodes the success envelope. A 404 maps to errNotFound so
// callers can translate it to an empty result.
func (c *Client) doJSON(ctx context.Context, method, u string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("vector: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("vector: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector: %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("vector: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("vector: decode response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("vector: request failed: %s", env.Message)
	}
	return &env, nil
}

func decodeResults(data json.RawMessage) ([]SearchResult, error) {
	var results []SearchResult
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("vector: decode results: %w", err)
	}
	return results, nil
}
