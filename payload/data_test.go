package payload

import (
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataContentTypeDefault(t *testing.T) {
	d := New("", strings.NewReader("x"))
	assert.Equal(t, "application/octet-stream", d.ContentType())

	d = New("text/plain", strings.NewReader("x"))
	assert.Equal(t, "text/plain", d.ContentType())
}

func TestDataTextIdempotent(t *testing.T) {
	d := New("text/plain", strings.NewReader("hello"))

	first, err := d.Text()
	require.NoError(t, err)
	second, err := d.Text()
	require.NoError(t, err)

	assert.Equal(t, "hello", first)
	assert.Equal(t, first, second)
}

func TestDataStreamAfterMaterializeFails(t *testing.T) {
	d := New("text/plain", strings.NewReader("hello"))
	_, err := d.Text()
	require.NoError(t, err)

	_, err = d.Stream()
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestDataMaterializeAfterStreamFails(t *testing.T) {
	d := New("text/plain", strings.NewReader("hello"))

	rc, err := d.Stream()
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(b))

	_, err = d.Binary()
	assert.ErrorIs(t, err, ErrStreamConsumed)
	_, err = d.Stream()
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestDataJSON(t *testing.T) {
	d := New("application/json", strings.NewReader(`{"a":1}`))
	v, err := d.JSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)
}

func TestDataJSONInvalid(t *testing.T) {
	d := New("application/json", strings.NewReader("not json"))
	_, err := d.JSON()
	assert.ErrorIs(t, err, ErrNotJSON)
}

func TestDataTextInvalidUTF8(t *testing.T) {
	d := FromBytes("text/plain", []byte{0xff, 0xfe})
	_, err := d.Text()
	assert.ErrorIs(t, err, ErrNotText)
}

func TestDataBase64(t *testing.T) {
	d := FromBytes("text/plain", []byte("hi"))
	s, err := d.Base64()
	require.NoError(t, err)
	assert.Equal(t, "aGk=", s)
}

func TestDataConcurrentMaterialize(t *testing.T) {
	d := New("text/plain", strings.NewReader("race me"))

	var wg sync.WaitGroup
	results := make([]string, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = d.Text()
		}()
	}
	wg.Wait()

	for i, s := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "race me", s)
	}
}

func TestDataResult(t *testing.T) {
	hit := Found(FromBytes("text/plain", []byte("v")))
	assert.True(t, hit.Exists())
	s, err := hit.Data().Text()
	require.NoError(t, err)
	assert.Equal(t, "v", s)

	miss := NotFound()
	assert.False(t, miss.Exists())
	require.NotNil(t, miss.Data())
	b, err := miss.Data().Binary()
	require.NoError(t, err)
	assert.Empty(t, b)
}
