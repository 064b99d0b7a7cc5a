package codec

import (
	"errors"
	"fmt"
)

// ViolationKind classifies a SchemaViolation.
type ViolationKind string

const (
	UnknownField   ViolationKind = "unknown_field"
	WrongValueType ViolationKind = "wrong_value_type"
)

// Sentinels for errors.Is checks against a *SchemaViolation.
var (
	ErrUnknownField   = errors.New("unknown field")
	ErrWrongValueType = errors.New("wrong value type")

	// ErrMalformedBlob is returned when a persisted blob cannot be decoded
	// against the schema it was written with.
	ErrMalformedBlob = errors.New("malformed value blob")
)

// SchemaViolation reports a value map that does not fit the schema.
type SchemaViolation struct {
	Kind     ViolationKind
	Key      string
	Expected string
	Actual   string
}

func (e *SchemaViolation) Error() string {
	if e.Kind == UnknownField {
		return fmt.Sprintf("unknown field %q", e.Key)
	}
	return fmt.Sprintf("field %q expects %s, got %s", e.Key, e.Expected, e.Actual)
}

// Is matches ErrUnknownField or ErrWrongValueType according to Kind.
func (e *SchemaViolation) Is(target error) bool {
	switch target {
	case ErrUnknownField:
		return e.Kind == UnknownField
	case ErrWrongValueType:
		return e.Kind == WrongValueType
	}
	return false
}
