package payload

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// ErrUnsupportedValueType is returned by ValueToPayload for values that
// have no wire encoding.
var ErrUnsupportedValueType = errors.New("payload: unsupported value type")

// ValueToPayload converts a Go value into a (content type, encoded bytes)
// pair. An explicit content type, when non-empty, overrides the inferred
// default but never changes which encoding rule applies:
//
//   - *Data: the data's own content type, its raw bytes
//   - []byte: application/octet-stream, identity
//   - string, bool, integers, floats: text/plain, string conversion
//   - maps, slices, arrays, structs: application/json, JSON serialization
//
// Anything else fails with ErrUnsupportedValueType.
func ValueToPayload(contentType string, value any) (string, []byte, error) {
	ct, b, err := encodeValue(value)
	if err != nil {
		return "", nil, err
	}
	if contentType != "" {
		ct = contentType
	}
	return ct, b, nil
}

func encodeValue(value any) (string, []byte, error) {
	switch v := value.(type) {
	case *Data:
		b, err := v.Binary()
		if err != nil {
			return "", nil, err
		}
		return v.ContentType(), b, nil
	case []byte:
		return DefaultContentType, v, nil
	case string:
		return "text/plain", []byte(v), nil
	case bool:
		return "text/plain", []byte(strconv.FormatBool(v)), nil
	case int:
		return "text/plain", []byte(strconv.Itoa(v)), nil
	case int8, int16, int32, int64:
		return "text/plain", []byte(fmt.Sprintf("%d", v)), nil
	case uint, uint8, uint16, uint32, uint64:
		return "text/plain", []byte(fmt.Sprintf("%d", v)), nil
	case float32:
		return "text/plain", []byte(strconv.FormatFloat(float64(v), 'g', -1, 32)), nil
	case float64:
		return "text/plain", []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
	case json.RawMessage:
		return "application/json", []byte(v), nil
	}

	// Lists, mappings, and their Go-struct equivalents encode as JSON.
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", nil, fmt.Errorf("%w: %T", ErrUnsupportedValueType, value)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.Marshal(value)
		if err != nil {
			return "", nil, fmt.Errorf("payload: encode json: %w", err)
		}
		return "application/json", b, nil
	}

	return "", nil, fmt.Errorf("%w: %T", ErrUnsupportedValueType, value)
}

// EncodePayload base64-encodes raw bytes with the standard alphabet.
func EncodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(encoded string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("payload: decode base64: %w", err)
	}
	return b, nil
}
