package survey

import (
	"context"
	"fmt"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/debug"
	"github.com/rhuss/umfrage/pkg/observability"
	"github.com/rhuss/umfrage/pkg/storage"
	"github.com/rhuss/umfrage/pkg/storage/files"
)

// Partitions opens the response store of a survey for a schema snapshot.
// sqlstore.DB.ResponseStore satisfies it.
type Partitions interface {
	ResponseStore(surveyID int64, schema api.Schema) (storage.ResponseStore, error)
}

// PartitionsFunc adapts a function to Partitions.
type PartitionsFunc func(surveyID int64, schema api.Schema) (storage.ResponseStore, error)

// ResponseStore calls f.
func (f PartitionsFunc) ResponseStore(surveyID int64, schema api.Schema) (storage.ResponseStore, error) {
	return f(surveyID, schema)
}

// Lifecycle step names, used as metric labels.
const (
	StepResourcesDir        = "resources_dir"
	StepCreatePartition     = "create_partition"
	StepResponsesDir        = "responses_dir"
	StepProcessedComponents = "remove_processed_components"
	StepDropPartition       = "drop_partition"
	StepRemoveResponsesDir  = "remove_responses_dir"
	StepDeleteSurvey        = "delete_survey"
)

// Lifecycle creates and removes the table and directories of a survey.
// Each step is idempotent. Steps run in order and stop at the first
// failure; completed steps are never rolled back, so a failed call can
// simply be repeated.
type Lifecycle struct {
	surveys    storage.SurveyStore
	partitions Partitions
	files      *files.Store
}

// NewLifecycle returns a Lifecycle over the given stores.
func NewLifecycle(surveys storage.SurveyStore, partitions Partitions, fs *files.Store) *Lifecycle {
	return &Lifecycle{surveys: surveys, partitions: partitions, files: fs}
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

// Provision creates the resource directory, the response partition and
// the responses directory of a survey.
func (l *Lifecycle) Provision(ctx context.Context, surveyID int64, schema api.Schema) error {
	part, err := l.partitions.ResponseStore(surveyID, schema)
	if err != nil {
		return err
	}
	return l.run(ctx, "provision", surveyID, []step{
		{StepResourcesDir, func(context.Context) error { return l.files.EnsureResourcesDir(surveyID) }},
		{StepCreatePartition, part.CreatePartition},
		{StepResponsesDir, func(context.Context) error { return l.files.EnsureResponsesDir(surveyID) }},
	})
}

// Teardown removes the processed-components artifact, the response
// partition, the responses directory and finally the survey record.
// Resources are left on disk.
func (l *Lifecycle) Teardown(ctx context.Context, surveyID int64) error {
	part, err := l.partitions.ResponseStore(surveyID, nil)
	if err != nil {
		return err
	}
	return l.run(ctx, "teardown", surveyID, []step{
		{StepProcessedComponents, func(context.Context) error { return l.files.RemoveProcessedComponents(surveyID) }},
		{StepDropPartition, part.DropPartition},
		{StepRemoveResponsesDir, func(context.Context) error { return l.files.RemoveResponsesDir(surveyID) }},
		{StepDeleteSurvey, func(ctx context.Context) error { return l.surveys.Delete(ctx, surveyID) }},
	})
}

// RecreatePartition drops and creates the response partition. Existing
// responses are discarded.
func (l *Lifecycle) RecreatePartition(ctx context.Context, surveyID int64, schema api.Schema) error {
	part, err := l.partitions.ResponseStore(surveyID, schema)
	if err != nil {
		return err
	}
	return l.run(ctx, "recreate", surveyID, []step{
		{StepDropPartition, part.DropPartition},
		{StepCreatePartition, part.CreatePartition},
	})
}

func (l *Lifecycle) run(ctx context.Context, op string, surveyID int64, steps []step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s survey %d: %w", op, surveyID, err)
		}
		err := s.run(ctx)
		observability.ObserveLifecycleStep(s.name, err)
		if err != nil {
			return fmt.Errorf("%s survey %d: %s: %w", op, surveyID, s.name, err)
		}
		debug.Log("lifecycle", "step done", "op", op, "survey", surveyID, "step", s.name)
	}
	return nil
}
