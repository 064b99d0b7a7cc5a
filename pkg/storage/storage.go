package storage

import (
	"context"

	"github.com/rhuss/umfrage/pkg/api"
)

// ResponseStore owns the response partition of one survey.
type ResponseStore interface {
	// CreatePartition creates the response table if it does not exist.
	CreatePartition(ctx context.Context) error

	// DropPartition removes the response table if it exists.
	DropPartition(ctx context.Context) error

	// Start inserts a new response and returns its id.
	Start(ctx context.Context, in api.StartInput) (int64, error)

	// Get returns one response or ErrNotFound.
	Get(ctx context.Context, id int64) (*api.ResponseRow, error)

	// All returns every response in the partition ordered by id.
	All(ctx context.Context) ([]*api.ResponseRow, error)

	// List returns one page of responses ordered by id.
	List(ctx context.Context, opts ListOptions) (*ResponseList, error)

	// Edit merges a partial update into a response and returns the result.
	Edit(ctx context.Context, id int64, patch api.EditInput) (*api.ResponseRow, error)
}

// ListOptions selects a page of responses. Responses with an id greater
// than After are returned, at most Limit of them.
type ListOptions struct {
	After int64
	Limit int
}

// Limit bounds for ListOptions.
const (
	DefaultListLimit = 20
	MaxListLimit     = 1000
)

// Normalize applies the default and maximum page size.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.After < 0 {
		o.After = 0
	}
	return o
}

// ResponseList is one page of responses.
type ResponseList struct {
	Data    []*api.ResponseRow `json:"data"`
	FirstID int64              `json:"first_id,omitempty"`
	LastID  int64              `json:"last_id,omitempty"`
	HasMore bool               `json:"has_more"`
}

// SurveyStore persists survey metadata records.
type SurveyStore interface {
	Create(ctx context.Context, s *api.Survey) (int64, error)
	Get(ctx context.Context, id int64) (*api.Survey, error)
	Update(ctx context.Context, s *api.Survey) error
	SaveSchema(ctx context.Context, id int64, schema api.Schema) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*api.Survey, error)
}
