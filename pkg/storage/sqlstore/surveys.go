package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/storage"
)

const surveysTable = "surveys"

var surveyColumns = []string{
	"id", "name", "default_lang", "additional_langs", "status",
	"navigation_mode", "responses_schema", "created_at", "updated_at",
}

// Surveys is the survey metadata store.
type Surveys struct {
	db *DB
}

// Ensure Surveys implements storage.SurveyStore at compile time.
var _ storage.SurveyStore = (*Surveys)(nil)

// Surveys returns the metadata store backed by db.
func (db *DB) Surveys() *Surveys {
	return &Surveys{db: db}
}

// Create inserts a survey and returns its id. CreatedAt and UpdatedAt are
// set on s.
func (s *Surveys) Create(ctx context.Context, sv *api.Survey) (int64, error) {
	langs, schema, err := marshalSurveyJSON(sv)
	if err != nil {
		return 0, err
	}
	ts := now()

	stmt, args := insertStmt(s.db.dialect, surveysTable, []assignment{
		bind("name", sv.Name),
		bind("default_lang", sv.DefaultLang),
		bind("additional_langs", langs),
		bind("status", string(sv.Status)),
		bind("navigation_mode", string(sv.NavigationMode)),
		bind("responses_schema", schema),
		bind("created_at", ts),
		bind("updated_at", ts),
	})

	var id int64
	if s.db.dialect.returningID {
		if err := s.db.queryRow(ctx, "survey_create", stmt, args, &id); err != nil {
			return 0, fmt.Errorf("inserting survey: %w", err)
		}
	} else {
		res, err := s.db.exec(ctx, "survey_create", stmt, args...)
		if err != nil {
			return 0, fmt.Errorf("inserting survey: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("reading survey id: %w", err)
		}
	}

	sv.ID = id
	sv.CreatedAt = ts
	sv.UpdatedAt = ts
	return id, nil
}

// Get returns a survey, or storage.ErrNotFound.
func (s *Surveys) Get(ctx context.Context, id int64) (*api.Survey, error) {
	b := selectStmt(s.db.dialect, surveysTable, surveyColumns, []assignment{bind("id", id)})

	var sv *api.Survey
	rows, err := s.db.query(ctx, "survey_get", b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("querying survey: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if sv, err = scanSurvey(rows); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying survey: %w", err)
	}
	if sv == nil {
		return nil, fmt.Errorf("survey %d: %w", id, storage.ErrNotFound)
	}
	return sv, nil
}

// Update overwrites the mutable attributes of a survey, schema included.
func (s *Surveys) Update(ctx context.Context, sv *api.Survey) error {
	langs, schema, err := marshalSurveyJSON(sv)
	if err != nil {
		return err
	}
	ts := now()

	stmt, args := updateStmt(s.db.dialect, surveysTable, []assignment{
		bind("name", sv.Name),
		bind("default_lang", sv.DefaultLang),
		bind("additional_langs", langs),
		bind("status", string(sv.Status)),
		bind("navigation_mode", string(sv.NavigationMode)),
		bind("responses_schema", schema),
		bind("updated_at", ts),
	}, []assignment{bind("id", sv.ID)})

	if err := s.expectOne(ctx, "survey_update", sv.ID, stmt, args); err != nil {
		return err
	}
	sv.UpdatedAt = ts
	return nil
}

// SaveSchema replaces the stored response schema of a survey.
func (s *Surveys) SaveSchema(ctx context.Context, id int64, schema api.Schema) error {
	text, err := json.Marshal(nonNilSchema(schema))
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	stmt, args := updateStmt(s.db.dialect, surveysTable, []assignment{
		bind("responses_schema", string(text)),
		bind("updated_at", now()),
	}, []assignment{bind("id", id)})
	return s.expectOne(ctx, "survey_save_schema", id, stmt, args)
}

// Delete removes a survey record. Deleting a missing survey is not an error.
func (s *Surveys) Delete(ctx context.Context, id int64) error {
	b := newBuilder(s.db.dialect).write("DELETE FROM ", s.db.dialect.quote(surveysTable))
	b.writeWhere([]assignment{bind("id", id)})
	if _, err := s.db.exec(ctx, "survey_delete", b.String(), b.args...); err != nil {
		return fmt.Errorf("deleting survey %d: %w", id, err)
	}
	return nil
}

// List returns all surveys ordered by id.
func (s *Surveys) List(ctx context.Context) ([]*api.Survey, error) {
	b := selectStmt(s.db.dialect, surveysTable, surveyColumns, nil)
	b.write(" ORDER BY ", s.db.dialect.quote("id"))

	rows, err := s.db.query(ctx, "survey_list", b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("listing surveys: %w", err)
	}
	defer rows.Close()

	result := []*api.Survey{}
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing surveys: %w", err)
	}
	return result, nil
}

func (s *Surveys) expectOne(ctx context.Context, op string, id int64, stmt string, args []any) error {
	res, err := s.db.exec(ctx, op, stmt, args...)
	if err != nil {
		return fmt.Errorf("updating survey %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating survey %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("survey %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func scanSurvey(row rowScanner) (*api.Survey, error) {
	var (
		sv               api.Survey
		langs, schema    string
		status, mode     string
		created, updated nullTime
	)
	if err := row.Scan(&sv.ID, &sv.Name, &sv.DefaultLang, &langs, &status, &mode, &schema, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning survey: %w", err)
	}
	if err := json.Unmarshal([]byte(langs), &sv.AdditionalLangs); err != nil {
		return nil, fmt.Errorf("decoding additional_langs of survey %d: %w", sv.ID, err)
	}
	if err := json.Unmarshal([]byte(schema), &sv.Schema); err != nil {
		return nil, fmt.Errorf("decoding schema of survey %d: %w", sv.ID, err)
	}
	sv.Status = api.SurveyStatus(status)
	sv.NavigationMode = api.NavigationMode(mode)
	sv.CreatedAt = created.Time
	sv.UpdatedAt = updated.Time
	return &sv, nil
}

func marshalSurveyJSON(sv *api.Survey) (langs, schema string, err error) {
	l := sv.AdditionalLangs
	if l == nil {
		l = []string{}
	}
	lb, err := json.Marshal(l)
	if err != nil {
		return "", "", fmt.Errorf("marshaling additional_langs: %w", err)
	}
	sb, err := json.Marshal(nonNilSchema(sv.Schema))
	if err != nil {
		return "", "", fmt.Errorf("marshaling schema: %w", err)
	}
	return string(lb), string(sb), nil
}

func nonNilSchema(s api.Schema) api.Schema {
	if s == nil {
		return api.Schema{}
	}
	return s
}
