package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/auth"
	"github.com/rhuss/umfrage/pkg/observability"
	"github.com/rhuss/umfrage/pkg/storage"
	"github.com/rhuss/umfrage/pkg/transport"
)

// SurveyService is the service layer behind the API. *survey.Service
// implements it.
type SurveyService interface {
	CreateSurvey(ctx context.Context, sv *api.Survey) (*api.Survey, error)
	GetSurvey(ctx context.Context, surveyID int64) (*api.Survey, error)
	ListSurveys(ctx context.Context) ([]*api.Survey, error)
	UpdateSurvey(ctx context.Context, surveyID int64, upd api.SurveyUpdate) (*api.Survey, error)
	RemoveSurvey(ctx context.Context, surveyID int64) error

	SaveProcessedComponents(ctx context.Context, surveyID int64, content []byte, schema api.Schema) (*api.Survey, error)
	ProcessedComponents(ctx context.Context, surveyID int64) ([]byte, error)

	StartResponse(ctx context.Context, surveyID int64, in api.StartInput) (*api.ResponseRow, error)
	EditResponse(ctx context.Context, surveyID, responseID int64, patch api.EditInput) (*api.ResponseRow, error)
	GetResponse(ctx context.Context, surveyID, responseID int64) (*api.ResponseRow, error)
	ListResponses(ctx context.Context, surveyID int64, opts storage.ListOptions) (*storage.ResponseList, error)
	AllResponses(ctx context.Context, surveyID int64) ([]*api.ResponseRow, error)

	UploadResponseFile(ctx context.Context, surveyID, responseID int64, fieldKey string, content io.Reader, filename string) (*api.ResponseRow, error)
	ResponseFile(ctx context.Context, surveyID, responseID int64, fieldKey string) ([]byte, api.StoredFile, error)
	SaveResource(ctx context.Context, surveyID int64, filename string, content io.Reader) (int64, error)
	Resource(ctx context.Context, surveyID int64, filename string) ([]byte, error)
}

// Config holds adapter settings.
type Config struct {
	// MaxBodySize bounds JSON request bodies.
	MaxBodySize int64

	// MaxUploadSize bounds multipart uploads.
	MaxUploadSize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:   10 << 20,
		MaxUploadSize: 32 << 20,
	}
}

// Adapter serves the survey API under /v1.
type Adapter struct {
	svc    SurveyService
	mux    *http.ServeMux
	config Config
}

// NewAdapter creates an adapter and registers its routes.
func NewAdapter(svc SurveyService, cfg Config) *Adapter {
	a := &Adapter{svc: svc, mux: http.NewServeMux(), config: cfg}

	a.mux.HandleFunc("POST /v1/surveys", a.handleCreateSurvey)
	a.mux.HandleFunc("GET /v1/surveys", a.handleListSurveys)
	a.mux.HandleFunc("GET /v1/surveys/{sid}", a.handleGetSurvey)
	a.mux.HandleFunc("PUT /v1/surveys/{sid}", a.handleUpdateSurvey)
	a.mux.HandleFunc("DELETE /v1/surveys/{sid}", a.handleRemoveSurvey)

	a.mux.HandleFunc("PUT /v1/surveys/{sid}/processed_components", a.handleSaveProcessedComponents)
	a.mux.HandleFunc("GET /v1/surveys/{sid}/processed_components", a.handleProcessedComponents)

	a.mux.HandleFunc("POST /v1/surveys/{sid}/responses", a.handleStartResponse)
	a.mux.HandleFunc("GET /v1/surveys/{sid}/responses", a.handleListResponses)
	a.mux.HandleFunc("GET /v1/surveys/{sid}/responses/{rid}", a.handleGetResponse)
	a.mux.HandleFunc("PATCH /v1/surveys/{sid}/responses/{rid}", a.handleEditResponse)
	a.mux.HandleFunc("POST /v1/surveys/{sid}/responses/{rid}/files/{key}", a.handleUploadFile)
	a.mux.HandleFunc("GET /v1/surveys/{sid}/responses/{rid}/files/{key}", a.handleDownloadFile)

	a.mux.HandleFunc("POST /v1/surveys/{sid}/resources", a.handleUploadResource)
	a.mux.HandleFunc("GET /v1/surveys/{sid}/resources/{filename}", a.handleResource)

	return a
}

// Handler returns the routed API with request metrics.
func (a *Adapter) Handler() http.Handler {
	return observability.MetricsMiddleware(a.mux)
}

// ---------------------------------------------------------------------------
// Surveys
// ---------------------------------------------------------------------------

func (a *Adapter) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	if !a.allow(w, r, auth.ScopeAdmin) {
		return
	}
	var sv api.Survey
	if !a.decode(w, r, &sv) {
		return
	}
	sv.ID = 0
	created, err := a.svc.CreateSurvey(r.Context(), &sv)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *Adapter) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListSurveys(r.Context())
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (a *Adapter) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok {
		return
	}
	sv, err := a.svc.GetSurvey(r.Context(), sid)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (a *Adapter) handleUpdateSurvey(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok || !a.allow(w, r, auth.ScopeAdmin) {
		return
	}
	var upd api.SurveyUpdate
	if !a.decode(w, r, &upd) {
		return
	}
	sv, err := a.svc.UpdateSurvey(r.Context(), sid, upd)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (a *Adapter) handleRemoveSurvey(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok || !a.allow(w, r, auth.ScopeAdmin) {
		return
	}
	if err := a.svc.RemoveSurvey(r.Context(), sid); err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type processedComponentsRequest struct {
	Components json.RawMessage `json:"components"`
	Schema     api.Schema      `json:"schema"`
}

func (a *Adapter) handleSaveProcessedComponents(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok || !a.allow(w, r, auth.ScopeAdmin) {
		return
	}
	var req processedComponentsRequest
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.Components) == 0 {
		transport.WriteAPIError(w, api.NewInvalidRequestError("components", "components are required"))
		return
	}
	sv, err := a.svc.SaveProcessedComponents(r.Context(), sid, req.Components, req.Schema)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

func (a *Adapter) handleProcessedComponents(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok {
		return
	}
	content, err := a.svc.ProcessedComponents(r.Context(), sid)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(content)
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

func (a *Adapter) handleStartResponse(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok || !a.allow(w, r, auth.ScopeRespond) {
		return
	}
	var in api.StartInput
	if !a.decode(w, r, &in) {
		return
	}
	row, err := a.svc.StartResponse(r.Context(), sid, in)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (a *Adapter) handleListResponses(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok || !a.allow(w, r, auth.ScopeAdmin) {
		return
	}
	opts, paged, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	if !paged {
		rows, err := a.svc.AllResponses(r.Context(), sid)
		if err != nil {
			transport.WriteError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusOK, listOf(rows))
		return
	}

	list, err := a.svc.ListResponses(r.Context(), sid, opts)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	if list.Data == nil {
		list.Data = []*api.ResponseRow{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *Adapter) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	sid, rid, ok := responseIDs(w, r)
	if !ok {
		return
	}
	row, err := a.svc.GetResponse(r.Context(), sid, rid)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (a *Adapter) handleEditResponse(w http.ResponseWriter, r *http.Request) {
	sid, rid, ok := responseIDs(w, r)
	if !ok || !a.allow(w, r, auth.ScopeRespond) {
		return
	}
	var patch api.EditInput
	if !a.decode(w, r, &patch) {
		return
	}
	row, err := a.svc.EditResponse(r.Context(), sid, rid, patch)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

func (a *Adapter) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	sid, rid, ok := responseIDs(w, r)
	if !ok || !a.allow(w, r, auth.ScopeRespond) {
		return
	}
	key := r.PathValue("key")

	var row *api.ResponseRow
	err := a.withUpload(w, r, func(name string, content io.Reader) error {
		var err error
		row, err = a.svc.UploadResponseFile(r.Context(), sid, rid, key, content, name)
		return err
	})
	if err != nil {
		a.writeUploadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (a *Adapter) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	sid, rid, ok := responseIDs(w, r)
	if !ok {
		return
	}
	data, file, err := a.svc.ResponseFile(r.Context(), sid, rid, r.PathValue("key"))
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeFile(w, file.Filename, data, true)
}

type resourceResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func (a *Adapter) handleUploadResource(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok || !a.allow(w, r, auth.ScopeAdmin) {
		return
	}
	var res resourceResponse
	err := a.withUpload(w, r, func(name string, content io.Reader) error {
		n, err := a.svc.SaveResource(r.Context(), sid, name, content)
		res = resourceResponse{Filename: name, Size: n}
		return err
	})
	if err != nil {
		a.writeUploadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *Adapter) handleResource(w http.ResponseWriter, r *http.Request) {
	sid, ok := pathID(w, r, "sid")
	if !ok {
		return
	}
	name := r.PathValue("filename")
	data, err := a.svc.Resource(r.Context(), sid, name)
	if err != nil {
		transport.WriteError(r.Context(), w, err)
		return
	}
	writeFile(w, name, data, false)
}

var errNoFilePart = errors.New("multipart form has no \"file\" part")

// withUpload streams the "file" part of a multipart request to fn.
func (a *Adapter) withUpload(w http.ResponseWriter, r *http.Request, fn func(name string, content io.Reader) error) error {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxUploadSize)
	mr, err := r.MultipartReader()
	if err != nil {
		return err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return errNoFilePart
		}
		if err != nil {
			return err
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		defer part.Close()
		return fn(part.FileName(), part)
	}
}

func (a *Adapter) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("file", fmt.Sprintf("upload too large (max %d bytes)", a.config.MaxUploadSize)),
			http.StatusRequestEntityTooLarge)
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary), errors.Is(err, errNoFilePart):
		transport.WriteAPIError(w, api.NewInvalidRequestError("file", err.Error()))
	default:
		transport.WriteError(r.Context(), w, err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// allow writes 403 and returns false if the caller lacks scope.
func (a *Adapter) allow(w http.ResponseWriter, r *http.Request, scope string) bool {
	if auth.Allowed(r.Context(), scope) {
		return true
	}
	transport.WriteAPIError(w, api.NewForbiddenError("missing scope "+scope))
	return false
}

// decode reads a JSON body into v. Numbers in free-form values are kept
// as json.Number so integers survive unchanged.
func (a *Adapter) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType)
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, ok := api.ParseID(r.PathValue(name))
	if !ok {
		transport.WriteAPIError(w, api.NewInvalidRequestError(name, "malformed id"))
	}
	return id, ok
}

func responseIDs(w http.ResponseWriter, r *http.Request) (sid, rid int64, ok bool) {
	if sid, ok = pathID(w, r, "sid"); !ok {
		return 0, 0, false
	}
	if rid, ok = pathID(w, r, "rid"); !ok {
		return 0, 0, false
	}
	return sid, rid, true
}

// parseListOptions reads after and limit. paged is false when neither is
// given, in which case the whole partition is returned.
func parseListOptions(r *http.Request) (opts storage.ListOptions, paged bool, apiErr *api.APIError) {
	q := r.URL.Query()
	if s := q.Get("after"); s != "" {
		after, err := strconv.ParseInt(s, 10, 64)
		if err != nil || after < 0 {
			return opts, false, api.NewInvalidRequestError("after", "after must be a non-negative integer")
		}
		opts.After = after
		paged = true
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			return opts, false, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
		paged = true
	}
	return opts.Normalize(), paged, nil
}

func listOf(rows []*api.ResponseRow) *storage.ResponseList {
	list := &storage.ResponseList{Data: rows}
	if list.Data == nil {
		list.Data = []*api.ResponseRow{}
	}
	if n := len(rows); n > 0 {
		list.FirstID = rows[0].ID
		list.LastID = rows[n-1].ID
	}
	return list
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeFile serves data with a content type guessed from name.
func writeFile(w http.ResponseWriter, name string, data []byte, attachment bool) {
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if attachment {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	w.Write(data)
}
