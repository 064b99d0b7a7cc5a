package survey

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/debug"
	"github.com/rhuss/umfrage/pkg/storage"
	"github.com/rhuss/umfrage/pkg/storage/files"
)

// Config holds service settings.
type Config struct {
	Validation api.ValidationConfig
}

// Service implements survey and response operations on top of the
// metadata store, the response partitions and the file store.
type Service struct {
	surveys    storage.SurveyStore
	partitions Partitions
	files      *files.Store
	lifecycle  *Lifecycle
	cfg        Config
}

// New creates a Service. All stores are required.
func New(surveys storage.SurveyStore, partitions Partitions, fs *files.Store, cfg Config) (*Service, error) {
	if surveys == nil || partitions == nil || fs == nil {
		return nil, errors.New("survey: surveys, partitions and files are required")
	}
	if cfg.Validation == (api.ValidationConfig{}) {
		cfg.Validation = api.DefaultValidationConfig()
	}
	return &Service{
		surveys:    surveys,
		partitions: partitions,
		files:      fs,
		lifecycle:  NewLifecycle(surveys, partitions, fs),
		cfg:        cfg,
	}, nil
}

// Lifecycle returns the resource lifecycle manager used by the service.
func (s *Service) Lifecycle() *Lifecycle {
	return s.lifecycle
}

// CreateSurvey validates and stores a new survey and provisions its
// partition and directories. If provisioning fails the record is kept and
// the error returned; provisioning can be retried with Provision.
func (s *Service) CreateSurvey(ctx context.Context, sv *api.Survey) (*api.Survey, error) {
	api.ApplySurveyDefaults(sv)
	if apiErr := api.ValidateSurvey(sv, s.cfg.Validation); apiErr != nil {
		return nil, apiErr
	}
	if _, err := s.surveys.Create(ctx, sv); err != nil {
		return nil, err
	}
	if err := s.lifecycle.Provision(ctx, sv.ID, sv.Schema); err != nil {
		return sv, err
	}
	slog.Info("survey created", "survey", sv.ID, "name", sv.Name)
	return sv, nil
}

// Provision repeats the resource provisioning of an existing survey.
func (s *Service) Provision(ctx context.Context, surveyID int64) error {
	sv, err := s.surveys.Get(ctx, surveyID)
	if err != nil {
		return err
	}
	return s.lifecycle.Provision(ctx, sv.ID, sv.Schema)
}

// GetSurvey returns a survey or storage.ErrNotFound.
func (s *Service) GetSurvey(ctx context.Context, surveyID int64) (*api.Survey, error) {
	return s.surveys.Get(ctx, surveyID)
}

// ListSurveys returns all surveys ordered by id.
func (s *Service) ListSurveys(ctx context.Context) ([]*api.Survey, error) {
	return s.surveys.List(ctx)
}

// UpdateSurvey applies a partial update to a survey's attributes.
func (s *Service) UpdateSurvey(ctx context.Context, surveyID int64, upd api.SurveyUpdate) (*api.Survey, error) {
	sv, err := s.surveys.Get(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	upd.Apply(sv)
	api.ApplySurveyDefaults(sv)
	if apiErr := api.ValidateSurvey(sv, s.cfg.Validation); apiErr != nil {
		return nil, apiErr
	}
	if err := s.surveys.Update(ctx, sv); err != nil {
		return nil, err
	}
	return sv, nil
}

// RemoveSurvey tears down a survey's resources and deletes its record.
func (s *Service) RemoveSurvey(ctx context.Context, surveyID int64) error {
	if _, err := s.surveys.Get(ctx, surveyID); err != nil {
		return err
	}
	if err := s.lifecycle.Teardown(ctx, surveyID); err != nil {
		return err
	}
	slog.Info("survey removed", "survey", surveyID)
	return nil
}

// SaveProcessedComponents stores the processed-components artifact of a
// survey together with the response schema derived from it. A schema that
// differs from the stored one replaces it and recreates the response
// partition, discarding existing responses.
func (s *Service) SaveProcessedComponents(ctx context.Context, surveyID int64, content []byte, schema api.Schema) (*api.Survey, error) {
	if apiErr := api.ValidateSchema(schema, s.cfg.Validation); apiErr != nil {
		return nil, apiErr
	}
	sv, err := s.surveys.Get(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if err := s.files.WriteProcessedComponents(surveyID, content); err != nil {
		return nil, err
	}
	if schema.Equal(sv.Schema) {
		return sv, nil
	}

	// The schema is stored only once the partition is rebuilt, so a failed
	// recreate is repeated by the next call.
	if err := s.lifecycle.RecreatePartition(ctx, surveyID, schema); err != nil {
		return nil, err
	}
	if err := s.surveys.SaveSchema(ctx, surveyID, schema); err != nil {
		return nil, err
	}
	slog.Info("response schema replaced", "survey", surveyID, "fields", len(schema))
	sv.Schema = schema
	return sv, nil
}

// ProcessedComponents returns the processed-components artifact.
func (s *Service) ProcessedComponents(ctx context.Context, surveyID int64) ([]byte, error) {
	if _, err := s.surveys.Get(ctx, surveyID); err != nil {
		return nil, err
	}
	return s.files.ReadProcessedComponents(surveyID)
}

// StartResponse records a new response and returns it. The language must
// be one the survey is offered in.
func (s *Service) StartResponse(ctx context.Context, surveyID int64, in api.StartInput) (*api.ResponseRow, error) {
	sv, part, err := s.partition(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	in.Lang = api.NormalizeLang(in.Lang)
	if apiErr := checkLang(sv, in.Lang); apiErr != nil {
		return nil, apiErr
	}
	id, err := part.Start(ctx, in)
	if err != nil {
		return nil, err
	}
	debug.Log("responses", "response started", "survey", surveyID, "response", id, "lang", in.Lang)
	return part.Get(ctx, id)
}

// EditResponse merges a partial update into a response.
func (s *Service) EditResponse(ctx context.Context, surveyID, responseID int64, patch api.EditInput) (*api.ResponseRow, error) {
	sv, part, err := s.partition(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if patch.Lang != nil {
		lang := api.NormalizeLang(*patch.Lang)
		patch.Lang = &lang
		if apiErr := checkLang(sv, lang); apiErr != nil {
			return nil, apiErr
		}
	}
	return part.Edit(ctx, responseID, patch)
}

// GetResponse returns one response.
func (s *Service) GetResponse(ctx context.Context, surveyID, responseID int64) (*api.ResponseRow, error) {
	_, part, err := s.partition(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return part.Get(ctx, responseID)
}

// ListResponses returns a page of responses ordered by id.
func (s *Service) ListResponses(ctx context.Context, surveyID int64, opts storage.ListOptions) (*storage.ResponseList, error) {
	_, part, err := s.partition(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return part.List(ctx, opts)
}

// AllResponses returns every response of a survey.
func (s *Service) AllResponses(ctx context.Context, surveyID int64) ([]*api.ResponseRow, error) {
	_, part, err := s.partition(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return part.All(ctx)
}

// UploadResponseFile stores an attachment for a FILE field and records its
// descriptor in the response. The file is written before the response is
// updated; if the update fails the file stays on disk unreferenced.
func (s *Service) UploadResponseFile(ctx context.Context, surveyID, responseID int64, fieldKey string, content io.Reader, filename string) (*api.ResponseRow, error) {
	sv, part, err := s.partition(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	field, ok := sv.Schema.Lookup(fieldKey)
	if !ok {
		return nil, api.NewNotFoundError(fmt.Sprintf("survey %d has no field %q", surveyID, fieldKey))
	}
	if field.DataType != api.DataTypeFile {
		return nil, api.NewInvalidRequestError("key", fmt.Sprintf("field %q is not a file field", fieldKey))
	}
	if _, err := part.Get(ctx, responseID); err != nil {
		return nil, err
	}

	stored, err := s.files.SaveAttachment(ctx, surveyID, fieldKey, content, filename)
	if err != nil {
		return nil, err
	}
	row, err := part.Edit(ctx, responseID, api.EditInput{Values: map[string]any{fieldKey: stored}})
	if err != nil {
		slog.Warn("attachment stored but response not updated",
			"survey", surveyID,
			"response", responseID,
			"field", fieldKey,
			"stored", stored.StoredFilename,
			"error", err,
		)
		return nil, err
	}
	return row, nil
}

// ResponseFile returns the attachment referenced by a response's FILE field.
func (s *Service) ResponseFile(ctx context.Context, surveyID, responseID int64, fieldKey string) ([]byte, api.StoredFile, error) {
	_, part, err := s.partition(ctx, surveyID)
	if err != nil {
		return nil, api.StoredFile{}, err
	}
	return s.files.LoadAttachment(ctx, part, surveyID, fieldKey, responseID)
}

// SaveResource stores a survey-level asset under its original name.
func (s *Service) SaveResource(ctx context.Context, surveyID int64, filename string, content io.Reader) (int64, error) {
	if _, err := s.surveys.Get(ctx, surveyID); err != nil {
		return 0, err
	}
	return s.files.SaveResource(ctx, surveyID, filename, content)
}

// Resource returns a survey-level asset.
func (s *Service) Resource(ctx context.Context, surveyID int64, filename string) ([]byte, error) {
	if _, err := s.surveys.Get(ctx, surveyID); err != nil {
		return nil, err
	}
	return s.files.ReadResource(surveyID, filename)
}

func (s *Service) partition(ctx context.Context, surveyID int64) (*api.Survey, storage.ResponseStore, error) {
	sv, err := s.surveys.Get(ctx, surveyID)
	if err != nil {
		return nil, nil, err
	}
	part, err := s.partitions.ResponseStore(surveyID, sv.Schema)
	if err != nil {
		return nil, nil, err
	}
	return sv, part, nil
}

func checkLang(sv *api.Survey, lang string) *api.APIError {
	if apiErr := api.ValidateLang("lang", lang); apiErr != nil {
		return apiErr
	}
	if !sv.SupportsLang(lang) {
		return api.NewInvalidRequestError("lang",
			fmt.Sprintf("survey %d is not offered in %q", sv.ID, lang))
	}
	return nil
}
