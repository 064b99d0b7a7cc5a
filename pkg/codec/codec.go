package codec

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/debug"
)

// Codec converts between value maps and persisted blobs.
type Codec interface {
	// Encode validates values against schema and returns the blob.
	Encode(values map[string]any, schema api.Schema) (string, error)

	// Decode parses a blob written for schema back into a value map.
	Decode(blob string, schema api.Schema) (map[string]any, error)
}

// JSON stores the value map as a single JSON object keyed by column name.
// LIST, MAP and FILE values are nested as JSON text; scalars stay native.
type JSON struct{}

var _ Codec = JSON{}

// Encode implements Codec. Keys are checked in sorted order so the reported
// violation is stable for a given input.
func (JSON) Encode(values map[string]any, schema api.Schema) (string, error) {
	fields := index(schema)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(map[string]any, len(values))
	for _, key := range keys {
		f, ok := fields[key]
		if !ok {
			debug.Log("codec", "rejecting unknown field", "key", key)
			return "", &SchemaViolation{Kind: UnknownField, Key: key}
		}
		v, err := normalize(f, values[key])
		if err != nil {
			debug.Log("codec", "rejecting value", "key", key, "error", err)
			return "", err
		}
		if f.DataType.Structured() {
			text, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("encoding %q: %w", key, err)
			}
			v = string(text)
		}
		out[f.ColumnName()] = v
	}

	blob, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding value blob: %w", err)
	}
	return string(blob), nil
}

// Decode implements Codec.
func (JSON) Decode(blob string, schema api.Schema) (map[string]any, error) {
	values := make(map[string]any)
	if blob == "" {
		return values, nil
	}

	dec := json.NewDecoder(strings.NewReader(blob))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}

	for _, f := range schema {
		stored, ok := raw[f.ColumnName()]
		if !ok {
			continue
		}
		v, err := decodeValue(f, stored)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBlob, f.ColumnName(), err)
		}
		values[f.ValueKey()] = v
	}
	return values, nil
}

func decodeValue(f api.ResponseField, stored any) (any, error) {
	if f.DataType.Structured() {
		text, ok := stored.(string)
		if !ok {
			return nil, fmt.Errorf("want JSON text, got %s", kindOf(stored))
		}
		switch f.DataType {
		case api.DataTypeList:
			var list []any
			if err := unmarshalNumbers(text, &list); err != nil {
				return nil, err
			}
			return list, nil
		case api.DataTypeMap:
			var m map[string]any
			if err := unmarshalNumbers(text, &m); err != nil {
				return nil, err
			}
			return m, nil
		default:
			var file api.StoredFile
			if err := json.Unmarshal([]byte(text), &file); err != nil {
				return nil, err
			}
			return file, nil
		}
	}

	v, err := normalize(f, stored)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// unmarshalNumbers decodes nested JSON text, keeping numbers as
// json.Number so integers beyond 2^53 survive a decode and re-encode.
func unmarshalNumbers(text string, v any) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	return dec.Decode(v)
}

func index(schema api.Schema) map[string]api.ResponseField {
	m := make(map[string]api.ResponseField, len(schema))
	for _, f := range schema {
		m[f.ValueKey()] = f
	}
	return m
}
