package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/rhuss/umfrage/pkg/api"
)

// normalize checks v against the declared type of f and returns the value
// in its canonical Go form: bool, string, int64, float64, the original
// slice or map, or api.StoredFile.
func normalize(f api.ResponseField, v any) (any, error) {
	var (
		out any
		ok  bool
	)
	switch f.DataType {
	case api.DataTypeBoolean:
		out, ok = v.(bool)
	case api.DataTypeString, api.DataTypeDate:
		out, ok = v.(string)
	case api.DataTypeInt:
		out, ok = toInt(v)
	case api.DataTypeDouble:
		out, ok = toFloat(v)
	case api.DataTypeList:
		out, ok = v, isList(v)
	case api.DataTypeMap:
		out, ok = v, isMap(v)
	case api.DataTypeFile:
		out, ok = toStoredFile(v)
	}
	if !ok {
		return nil, &SchemaViolation{
			Kind:     WrongValueType,
			Key:      f.ValueKey(),
			Expected: string(f.DataType),
			Actual:   kindOf(v),
		}
	}
	return out, nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return integral(float64(n))
	case float64:
		return integral(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return integral(f)
	}
	return 0, false
}

// integral accepts floats that carry an exact int64 value, which is how
// JSON decoders without UseNumber hand over integers.
func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		i, ok := toInt(v)
		if !ok {
			return 0, false
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	switch t.Kind() {
	case reflect.Slice:
		// []byte would marshal as a base64 string.
		return t.Elem().Kind() != reflect.Uint8 && !reflect.ValueOf(v).IsNil()
	case reflect.Array:
		return true
	}
	return false
}

func isMap(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	return t.Kind() == reflect.Map && t.Key().Kind() == reflect.String && !reflect.ValueOf(v).IsNil()
}

func toStoredFile(v any) (api.StoredFile, bool) {
	switch f := v.(type) {
	case api.StoredFile:
		return f, f.StoredFilename != ""
	case *api.StoredFile:
		if f == nil {
			return api.StoredFile{}, false
		}
		return *f, f.StoredFilename != ""
	case map[string]any:
		stored, ok := f["stored_filename"].(string)
		if !ok || stored == "" {
			return api.StoredFile{}, false
		}
		name, ok := f["filename"].(string)
		if !ok {
			return api.StoredFile{}, false
		}
		size, ok := toInt(f["size"])
		if !ok || size < 0 {
			return api.StoredFile{}, false
		}
		return api.StoredFile{Filename: name, StoredFilename: stored, Size: size}, true
	}
	return api.StoredFile{}, false
}

// kindOf names the JSON-level kind of v for error messages.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case api.StoredFile, *api.StoredFile:
		return "file"
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "map"
	}
	return fmt.Sprintf("%T", v)
}
