package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"time"
)

// ---------------------------------------------------------------------------
// Schema types
// ---------------------------------------------------------------------------

// DataType is the declared type of a response field.
type DataType string

const (
	DataTypeBoolean DataType = "BOOLEAN"
	DataTypeString  DataType = "STRING"
	DataTypeInt     DataType = "INT"
	DataTypeDouble  DataType = "DOUBLE"
	DataTypeDate    DataType = "DATE"
	DataTypeList    DataType = "LIST"
	DataTypeMap     DataType = "MAP"
	DataTypeFile    DataType = "FILE"
)

// DataTypes lists every declared data type.
var DataTypes = []DataType{
	DataTypeBoolean, DataTypeString, DataTypeInt, DataTypeDouble,
	DataTypeDate, DataTypeList, DataTypeMap, DataTypeFile,
}

// Valid reports whether d is one of the declared data types.
func (d DataType) Valid() bool {
	return slices.Contains(DataTypes, d)
}

// Structured reports whether values of this type are persisted as JSON text.
func (d DataType) Structured() bool {
	return d == DataTypeList || d == DataTypeMap || d == DataTypeFile
}

// ColumnKind names the facet of a component a field stores, such as its
// value or its display order. The string form is the one used in value keys.
type ColumnKind string

const (
	ColumnValue       ColumnKind = "value"
	ColumnOrder       ColumnKind = "order"
	ColumnPriority    ColumnKind = "priority"
	ColumnRelevance   ColumnKind = "relevance"
	ColumnValidity    ColumnKind = "validity"
	ColumnBeenVisited ColumnKind = "beenVisited"
	ColumnMasked      ColumnKind = "masked"
	ColumnLabel       ColumnKind = "label"
)

var columnNames = map[ColumnKind]string{
	ColumnValue:       "value",
	ColumnOrder:       "order",
	ColumnPriority:    "priority",
	ColumnRelevance:   "relevance",
	ColumnValidity:    "validity",
	ColumnBeenVisited: "been_visited",
	ColumnMasked:      "masked",
	ColumnLabel:       "label",
}

// Valid reports whether k is a known column kind.
func (k ColumnKind) Valid() bool {
	_, ok := columnNames[k]
	return ok
}

// Column returns the persisted (snake_case) form of the kind.
func (k ColumnKind) Column() string {
	return columnNames[k]
}

var componentCodePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// ResponseField describes one permitted entry of a response value map.
type ResponseField struct {
	ComponentCode string     `json:"component_code"`
	Kind          ColumnKind `json:"column"`
	DataType      DataType   `json:"data_type"`
}

// ValueKey returns the key under which the field appears in a value map.
func (f ResponseField) ValueKey() string {
	return f.ComponentCode + "." + string(f.Kind)
}

// ColumnName returns the key under which the field is persisted.
func (f ResponseField) ColumnName() string {
	return f.ComponentCode + "." + f.Kind.Column()
}

// Schema is the ordered list of fields a survey's responses may carry.
type Schema []ResponseField

// Lookup returns the field whose value key equals key.
func (s Schema) Lookup(key string) (ResponseField, bool) {
	for _, f := range s {
		if f.ValueKey() == key {
			return f, true
		}
	}
	return ResponseField{}, false
}

// Validate checks every field descriptor and uniqueness by value key.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, f := range s {
		if !componentCodePattern.MatchString(f.ComponentCode) {
			return fmt.Errorf("schema[%d]: invalid component code %q", i, f.ComponentCode)
		}
		if !f.Kind.Valid() {
			return fmt.Errorf("schema[%d]: unknown column kind %q", i, f.Kind)
		}
		if !f.DataType.Valid() {
			return fmt.Errorf("schema[%d]: unknown data type %q", i, f.DataType)
		}
		key := f.ValueKey()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("schema[%d]: duplicate field %q", i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Equal reports whether both schemas list the same fields in the same order.
func (s Schema) Equal(other Schema) bool {
	return slices.Equal(s, other)
}

// ---------------------------------------------------------------------------
// Response types
// ---------------------------------------------------------------------------

// NavigationIndex is the navigation engine's position within a survey. Its
// structure belongs to the engine; it is persisted and returned unchanged.
type NavigationIndex json.RawMessage

// MarshalJSON returns the raw index, or null when empty.
func (n NavigationIndex) MarshalJSON() ([]byte, error) {
	if len(n) == 0 {
		return []byte("null"), nil
	}
	return n, nil
}

// UnmarshalJSON stores a copy of the raw JSON.
func (n *NavigationIndex) UnmarshalJSON(data []byte) error {
	if n == nil {
		return fmt.Errorf("api.NavigationIndex: UnmarshalJSON on nil pointer")
	}
	*n = append((*n)[0:0], data...)
	return nil
}

// Text returns the compacted persisted form. An empty index becomes "null".
func (n NavigationIndex) Text() (string, error) {
	if len(n) == 0 {
		return "null", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, n); err != nil {
		return "", fmt.Errorf("navigation index is not valid JSON: %w", err)
	}
	return buf.String(), nil
}

// StoredFile describes an uploaded attachment referenced from a FILE field.
type StoredFile struct {
	Filename       string `json:"filename"`
	StoredFilename string `json:"stored_filename"`
	Size           int64  `json:"size"`
}

// ResponseRow is one stored survey response.
type ResponseRow struct {
	ID              int64           `json:"id"`
	NavigationIndex NavigationIndex `json:"navigation_index"`
	StartDate       time.Time       `json:"start_date"`
	SubmitDate      *time.Time      `json:"submit_date,omitempty"`
	Lang            string          `json:"lang"`
	Values          map[string]any  `json:"values"`
	Version         int64           `json:"version"`
}

// StartInput carries the data for a new response.
type StartInput struct {
	NavigationIndex NavigationIndex `json:"navigation_index"`
	Lang            string          `json:"lang"`
	Values          map[string]any  `json:"values,omitempty"`
}

// EditInput is a partial update. Nil structural fields are left untouched;
// Values are merged over the stored values.
type EditInput struct {
	NavigationIndex NavigationIndex `json:"navigation_index,omitempty"`
	Lang            *string         `json:"lang,omitempty"`
	SubmitDate      *time.Time      `json:"submit_date,omitempty"`
	Values          map[string]any  `json:"values,omitempty"`
}

// ---------------------------------------------------------------------------
// Survey metadata
// ---------------------------------------------------------------------------

// SurveyStatus is the publication state of a survey.
type SurveyStatus string

const (
	SurveyStatusDraft  SurveyStatus = "draft"
	SurveyStatusActive SurveyStatus = "active"
	SurveyStatusClosed SurveyStatus = "closed"
)

// NavigationMode controls how the navigation engine pages through a survey.
type NavigationMode string

const (
	NavigationAllInOne           NavigationMode = "all_in_one"
	NavigationGroupByGroup       NavigationMode = "group_by_group"
	NavigationQuestionByQuestion NavigationMode = "question_by_question"
)

// Survey is the metadata record that owns a response partition.
type Survey struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	DefaultLang     string         `json:"default_lang"`
	AdditionalLangs []string       `json:"additional_langs"`
	Status          SurveyStatus   `json:"status"`
	NavigationMode  NavigationMode `json:"navigation_mode"`
	Schema          Schema         `json:"schema"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// SupportsLang reports whether responses may be recorded in lang.
func (s *Survey) SupportsLang(lang string) bool {
	return lang == s.DefaultLang || slices.Contains(s.AdditionalLangs, lang)
}

// SurveyUpdate is a partial update of a survey's attributes. Nil fields are
// left untouched. The schema changes only through processed components.
type SurveyUpdate struct {
	Name            *string         `json:"name,omitempty"`
	DefaultLang     *string         `json:"default_lang,omitempty"`
	AdditionalLangs *[]string       `json:"additional_langs,omitempty"`
	Status          *SurveyStatus   `json:"status,omitempty"`
	NavigationMode  *NavigationMode `json:"navigation_mode,omitempty"`
}

// Apply copies the set fields of u onto s.
func (u SurveyUpdate) Apply(s *Survey) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.DefaultLang != nil {
		s.DefaultLang = *u.DefaultLang
	}
	if u.AdditionalLangs != nil {
		s.AdditionalLangs = slices.Clone(*u.AdditionalLangs)
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.NavigationMode != nil {
		s.NavigationMode = *u.NavigationMode
	}
}
