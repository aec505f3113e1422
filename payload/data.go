// Package payload implements the value model for agent request and response
// bodies: a lazy, single-consumption Data wrapper around a byte stream with
// a declared content type, and a codec that converts arbitrary Go values to
// and from wire payloads.
package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"
)

// DefaultContentType is used whenever a content type is unknown.
const DefaultContentType = "application/octet-stream"

var (
	// ErrStreamConsumed is returned when the raw stream is requested after
	// the data has been materialized, or after the stream was handed out.
	ErrStreamConsumed = errors.New("payload: stream already consumed")

	// ErrNotText is returned by Text when the bytes are not valid UTF-8.
	ErrNotText = errors.New("payload: data is not valid UTF-8")

	// ErrNotJSON is returned by JSON when the bytes do not parse as JSON.
	ErrNotJSON = errors.New("payload: data is not JSON")
)

// Data wraps a byte source that is read at most once. The first
// materializing accessor (Text, JSON, Binary, Base64) drains the source and
// caches the bytes; later materializing calls reuse the cache. The raw
// stream is single-use: Stream fails once the data has been materialized,
// and materializers fail once the stream has been handed out.
type Data struct {
	contentType string

	mu  sync.Mutex
	src io.ReadCloser
	buf []byte
	// cached reports whether buf holds the materialized bytes. It is
	// distinct from buf == nil so an empty body still counts as cached.
	cached bool
}

// New creates a Data backed by an unconsumed byte stream.
func New(contentType string, src io.Reader) *Data {
	rc, ok := src.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(src)
	}
	return &Data{contentType: contentType, src: rc}
}

// FromBytes creates a Data that is already materialized.
func FromBytes(contentType string, b []byte) *Data {
	return &Data{contentType: contentType, buf: b, cached: true}
}

// Empty returns a materialized Data with no bytes and the default content
// type. DataResult hands it out for misses so callers never touch nil.
func Empty() *Data {
	return FromBytes("", nil)
}

// ContentType returns the declared content type, or the default when none
// was declared.
func (d *Data) ContentType() string {
	if d.contentType == "" {
		return DefaultContentType
	}
	return d.contentType
}

// Stream returns the underlying unconsumed stream. The caller owns the
// returned reader and must close it. After Stream succeeds the Data can no
// longer be materialized.
func (d *Data) Stream() (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached || d.src == nil {
		return nil, ErrStreamConsumed
	}
	src := d.src
	d.src = nil
	return src, nil
}

// Reader returns a reader over the payload bytes without forcing
// materialization: the raw stream when it is still unread, or a reader over
// the cache when the data was already materialized. Like Stream, the raw
// stream can be handed out only once.
func (d *Data) Reader() (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached {
		return io.NopCloser(bytes.NewReader(d.buf)), nil
	}
	if d.src == nil {
		return nil, ErrStreamConsumed
	}
	src := d.src
	d.src = nil
	return src, nil
}

// materialize drains and caches the source on first call. Concurrent
// materializers serialize on the mutex; all but the first read the cache.
func (d *Data) materialize() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached {
		return d.buf, nil
	}
	if d.src == nil {
		return nil, ErrStreamConsumed
	}
	defer d.src.Close()
	b, err := io.ReadAll(d.src)
	if err != nil {
		return nil, fmt.Errorf("payload: read stream: %w", err)
	}
	d.src = nil
	d.buf = b
	d.cached = true
	return b, nil
}

// Binary returns the full payload bytes verbatim.
func (d *Data) Binary() ([]byte, error) {
	return d.materialize()
}

// Text returns the payload decoded as UTF-8 text.
func (d *Data) Text() (string, error) {
	b, err := d.materialize()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrNotText
	}
	return string(b), nil
}

// JSON parses the payload as JSON and returns the decoded value.
func (d *Data) JSON() (any, error) {
	var v any
	if err := d.JSONInto(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// JSONInto parses the payload as JSON into v.
func (d *Data) JSONInto(v any) error {
	b, err := d.materialize()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %w", ErrNotJSON, err)
	}
	return nil
}

// Base64 returns the payload encoded as standard base64.
func (d *Data) Base64() (string, error) {
	b, err := d.materialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DataResult distinguishes "found empty" from "not found" without a nil
// Data ever reaching the caller.
type DataResult struct {
	data *Data
}

// Found wraps data retrieved from a store.
func Found(d *Data) DataResult {
	return DataResult{data: d}
}

// NotFound reports a miss.
func NotFound() DataResult {
	return DataResult{}
}

// Exists reports whether the lookup found data.
func (r DataResult) Exists() bool {
	return r.data != nil
}

// Data returns the found data, or an empty sentinel on a miss.
func (r DataResult) Data() *Data {
	if r.data == nil {
		return Empty()
	}
	return r.data
}
