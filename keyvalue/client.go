// Package keyvalue provides the HTTP client for the cloud key-value store.
package keyvalue

import (
	"bytes"
	"context"
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
	"github.com/ashita-ai/enso/payload"
)

// MinTTL is the smallest TTL the backend accepts.
const MinTTL = 60 * time.Second

// ErrTTLTooShort is returned by Set before any network I/O when the
// requested TTL is below MinTTL.
var ErrTTLTooShort = errors.New("keyvalue: ttl must be at least 60 seconds")

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the cloud service (e.g. "https://api.enso.dev").
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with a 2-minute timeout is used.
	HTTPClient *http.Client

	// Tracer is an optional tracer; the global one is used when nil.
	Tracer trace.Tracer
}

// Client is an HTTP client for the key-value store API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	tracer  trace.Tracer
}

// New creates a Client from the given configuration.
// Returns an error if BaseURL or APIKey is empty.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("keyvalue: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("keyvalue: APIKey is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("enso/keyvalue")
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
		tracer:  tracer,
	}, nil
}

// Get retrieves a value. A miss is reported through the DataResult, not as
// an error.
func (c *Client) Get(ctx context.Context, collection, key string) (payload.DataResult, error) {
	ctx, span := c.tracer.Start(ctx, "enso.keyvalue.get", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("key", key),
	))
	defer span.End()

	resp, err := c.do(ctx, http.MethodGet, c.keyURL(collection, key), "", nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return payload.NotFound(), err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		span.AddEvent("hit")
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return payload.NotFound(), fmt.Errorf("keyvalue: read response: %w", err)
		}
		ct := resp.Header.Get("Content-Type")
		return payload.Found(payload.FromBytes(ct, b)), nil
	case http.StatusNotFound:
		span.AddEvent("miss")
		return payload.NotFound(), nil
	default:
		err := responseError("keyvalue: get", resp)
		span.SetStatus(codes.Error, err.Error())
		return payload.NotFound(), err
	}
}

// SetOptions carries the optional parameters of Set.
type SetOptions struct {
	// TTL expires the key after the given duration. Zero means no expiry.
	// Non-zero values below MinTTL are rejected before any I/O.
	TTL time.Duration

	// ContentType overrides the content type inferred from the value.
	ContentType string
}

// Set stores a value under collection/key. The value is encoded with the
// payload codec rules, so strings, numbers, byte slices, JSON-able values,
// and *payload.Data are all accepted.
func (c *Client) Set(ctx context.Context, collection, key string, value any, opts *SetOptions) error {
	ctx, span := c.tracer.Start(ctx, "enso.keyvalue.set", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("key", key),
	))
	defer span.End()

	var ttl time.Duration
	explicitCT := ""
	if opts != nil {
		ttl = opts.TTL
		explicitCT = opts.ContentType
	}
	if ttl != 0 && ttl < MinTTL {
		span.SetStatus(codes.Error, ErrTTLTooShort.Error())
		return ErrTTLTooShort
	}

	ct, body, err := payload.ValueToPayload(explicitCT, value)
	if err != nil {
		span.SetStatus(codes.Error, "failed to encode value")
		return err
	}
	span.SetAttributes(attribute.String("contentType", ct))

	u := c.keyURL(collection, key)
	if ttl != 0 {
		u += fmt.Sprintf("/%d", int64(ttl.Seconds()))
		span.SetAttributes(attribute.Int64("ttl_seconds", int64(ttl.Seconds())))
	}

	resp, err := c.do(ctx, http.MethodPut, u, ct, bytes.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		err := responseError("keyvalue: set", resp)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error on the
// backend side.
func (c *Client) Delete(ctx context.Context, collection, key string) error {
	ctx, span := c.tracer.Start(ctx, "enso.keyvalue.delete", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("key", key),
	))
	defer span.End()

	resp, err := c.do(ctx, http.MethodDelete, c.keyURL(collection, key), "", nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := responseError("keyvalue: delete", resp)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Client) keyURL(collection, key string) string {
	return fmt.Sprintf("%s/sdk/kv/%s/%s",
		c.baseURL, url.PathEscape(collection), url.PathEscape(key))
}

// do issues a request with the standard auth, user-agent, and trace-context
// headers applied.
func (c *Client) do(ctx context.Context, method, u, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("keyvalue: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyvalue: %s %s: %w", method, u, err)
	}
	return resp, nil
}

// responseError reads a failed response's body into the error detail.
func responseError(op string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(detail) == 0 {
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(detail)))
}
