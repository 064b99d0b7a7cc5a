package sqlstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/codec"
	"github.com/rhuss/umfrage/pkg/storage"
)

// openSQLite opens a migrated SQLite database in a temporary directory.
func openSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Driver:         DriverSQLite,
		DSN:            filepath.Join(t.TempDir(), "umfrage.db"),
		MigrateOnStart: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func q1Schema() api.Schema {
	return api.Schema{{ComponentCode: "Q1", Kind: api.ColumnValue, DataType: api.DataTypeString}}
}

func richSchema() api.Schema {
	return api.Schema{
		{ComponentCode: "Q1", Kind: api.ColumnValue, DataType: api.DataTypeString},
		{ComponentCode: "Q2", Kind: api.ColumnValue, DataType: api.DataTypeInt},
		{ComponentCode: "Q3", Kind: api.ColumnValue, DataType: api.DataTypeList},
		{ComponentCode: "Q4", Kind: api.ColumnValue, DataType: api.DataTypeFile},
		{ComponentCode: "G1", Kind: api.ColumnBeenVisited, DataType: api.DataTypeBoolean},
	}
}

func newPartition(t *testing.T, db *DB, surveyID int64, schema api.Schema) *Partition {
	t.Helper()
	p, err := db.Partition(surveyID, schema)
	require.NoError(t, err)
	require.NoError(t, p.CreatePartition(context.Background()))
	return p
}

var groupsIndex = api.NavigationIndex(`{"name":"groups","groupIds":[]}`)

func TestScenarioStartGetEdit(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, q1Schema())

	id, err := p.Start(ctx, api.StartInput{
		NavigationIndex: groupsIndex,
		Lang:            "EN",
		Values:          map[string]any{"Q1.value": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	row, err := p.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Q1.value": "hello"}, row.Values)
	assert.Equal(t, "en", row.Lang, "language codes are stored lower-case")

	_, err = p.Edit(ctx, 1, api.EditInput{Values: map[string]any{"Q1.value": "world"}})
	require.NoError(t, err)

	row, err = p.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Q1.value": "world"}, row.Values)
}

func TestStartThenGet(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 7, richSchema())

	values := map[string]any{
		"Q1.value":       "Berlin",
		"Q2.value":       int64(3),
		"Q3.value":       []any{"A1", "A4"},
		"G1.beenVisited": true,
	}
	before := time.Now().UTC().Add(-time.Second)
	id, err := p.Start(ctx, api.StartInput{NavigationIndex: groupsIndex, Lang: "de", Values: values})
	require.NoError(t, err)

	row, err := p.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, row.ID)
	assert.Equal(t, values, row.Values)
	assert.Equal(t, "de", row.Lang)
	assert.Equal(t, string(groupsIndex), string(row.NavigationIndex))
	assert.Nil(t, row.SubmitDate)
	assert.False(t, row.StartDate.IsZero())
	assert.True(t, row.StartDate.After(before), "start date %v should be recent", row.StartDate)
	assert.Equal(t, int64(0), row.Version)
}

func TestStartRejectsSchemaViolations(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, q1Schema())

	_, err := p.Start(ctx, api.StartInput{Lang: "en", Values: map[string]any{"Q9.value": "x"}})
	assert.ErrorIs(t, err, codec.ErrUnknownField)

	_, err = p.Start(ctx, api.StartInput{Lang: "en", Values: map[string]any{"Q1.value": 12}})
	assert.ErrorIs(t, err, codec.ErrWrongValueType)

	_, err = p.Start(ctx, api.StartInput{Lang: "english", Values: nil})
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "lang", apiErr.Param)

	all, err := p.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "rejected starts must not insert rows")
}

func TestGetNotFound(t *testing.T) {
	p := newPartition(t, openSQLite(t), 1, q1Schema())
	_, err := p.Get(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEditKeepsLargeNestedIntegers(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, richSchema())

	id, err := p.Start(ctx, api.StartInput{Lang: "en", Values: map[string]any{
		"Q3.value": []any{json.Number("9007199254740993")},
	}})
	require.NoError(t, err)

	// Editing an unrelated key re-encodes the stored list.
	_, err = p.Edit(ctx, id, api.EditInput{Values: map[string]any{"Q1.value": "touched"}})
	require.NoError(t, err)

	row, err := p.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("9007199254740993")}, row.Values["Q3.value"])
	assert.Equal(t, "touched", row.Values["Q1.value"])
}

func TestEditMergesValues(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, richSchema())

	id, err := p.Start(ctx, api.StartInput{Lang: "en", Values: map[string]any{
		"Q1.value": "keep me",
		"Q2.value": int64(1),
	}})
	require.NoError(t, err)

	row, err := p.Edit(ctx, id, api.EditInput{Values: map[string]any{
		"Q2.value": float64(2),
		"Q3.value": []any{"A2"},
	}})
	require.NoError(t, err)

	want := map[string]any{
		"Q1.value": "keep me",
		"Q2.value": int64(2),
		"Q3.value": []any{"A2"},
	}
	assert.Equal(t, want, row.Values)
	assert.Equal(t, int64(1), row.Version)

	stored, err := p.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Values)
	assert.Nil(t, stored.SubmitDate)
	assert.Equal(t, "en", stored.Lang)
}

func TestEditOnlySubmitDate(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, q1Schema())

	id, err := p.Start(ctx, api.StartInput{NavigationIndex: groupsIndex, Lang: "en", Values: map[string]any{"Q1.value": "hello"}})
	require.NoError(t, err)

	submitted := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	_, err = p.Edit(ctx, id, api.EditInput{SubmitDate: &submitted})
	require.NoError(t, err)

	row, err := p.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Q1.value": "hello"}, row.Values)
	require.NotNil(t, row.SubmitDate)
	assert.True(t, submitted.Equal(*row.SubmitDate), "submit date = %v", row.SubmitDate)
	assert.Equal(t, string(groupsIndex), string(row.NavigationIndex))
}

func TestEditStructuralFields(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, q1Schema())

	id, err := p.Start(ctx, api.StartInput{NavigationIndex: groupsIndex, Lang: "en"})
	require.NoError(t, err)

	lang := "ar"
	next := api.NavigationIndex(`{"name":"group","groupId":"G2"}`)
	_, err = p.Edit(ctx, id, api.EditInput{NavigationIndex: next, Lang: &lang})
	require.NoError(t, err)

	row, err := p.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ar", row.Lang)
	assert.Equal(t, string(next), string(row.NavigationIndex))
	assert.Empty(t, row.Values)
}

func TestEditErrors(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, q1Schema())

	_, err := p.Edit(ctx, 42, api.EditInput{Values: map[string]any{"Q1.value": "x"}})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	id, err := p.Start(ctx, api.StartInput{Lang: "en", Values: map[string]any{"Q1.value": "x"}})
	require.NoError(t, err)

	_, err = p.Edit(ctx, id, api.EditInput{Values: map[string]any{"Q1.value": false}})
	assert.ErrorIs(t, err, codec.ErrWrongValueType)

	row, err := p.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "x", row.Values["Q1.value"], "failed edit must not change the row")
	assert.Equal(t, int64(0), row.Version)
}

func TestConcurrentEditsKeepDisjointKeys(t *testing.T) {
	ctx := context.Background()
	schema := api.Schema{
		{ComponentCode: "A", Kind: api.ColumnValue, DataType: api.DataTypeInt},
		{ComponentCode: "B", Kind: api.ColumnValue, DataType: api.DataTypeInt},
		{ComponentCode: "C", Kind: api.ColumnValue, DataType: api.DataTypeInt},
		{ComponentCode: "D", Kind: api.ColumnValue, DataType: api.DataTypeInt},
	}
	p := newPartition(t, openSQLite(t), 1, schema)

	id, err := p.Start(ctx, api.StartInput{Lang: "en"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, len(schema))
	for i, f := range schema {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Edit(ctx, id, api.EditInput{Values: map[string]any{f.ValueKey(): i}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	row, err := p.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, row.Values, len(schema))
	assert.Equal(t, int64(len(schema)), row.Version)
}

func TestCreatePartitionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	p := newPartition(t, db, 3, q1Schema())

	_, err := p.Start(ctx, api.StartInput{Lang: "en", Values: map[string]any{"Q1.value": "kept"}})
	require.NoError(t, err)

	require.NoError(t, p.CreatePartition(ctx))

	all, err := p.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "second create must not replace the table")

	var count int
	require.NoError(t, db.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'responses_3'").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestConcurrentCreatePartition(t *testing.T) {
	ctx := context.Background()
	p, err := openSQLite(t).Partition(5, q1Schema())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.CreatePartition(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestDropThenCreateYieldsEmptyPartition(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, q1Schema())

	for range 3 {
		_, err := p.Start(ctx, api.StartInput{Lang: "en"})
		require.NoError(t, err)
	}

	require.NoError(t, p.DropPartition(ctx))
	require.NoError(t, p.DropPartition(ctx), "dropping a missing partition is not an error")
	require.NoError(t, p.CreatePartition(ctx))

	all, err := p.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAllAndList(t *testing.T) {
	ctx := context.Background()
	p := newPartition(t, openSQLite(t), 1, q1Schema())

	var ids []int64
	for range 5 {
		id, err := p.Start(ctx, api.StartInput{Lang: "en"})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := p.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, r := range all {
		assert.Equal(t, ids[i], r.ID)
	}

	page, err := p.List(ctx, storage.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[0], page.FirstID)
	assert.Equal(t, ids[1], page.LastID)

	page, err = p.List(ctx, storage.ListOptions{After: page.LastID, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Data, 3)
	assert.False(t, page.HasMore)
	assert.Equal(t, ids[4], page.LastID)
}

func TestPartitionRejectsInvalidSurveyID(t *testing.T) {
	_, err := openSQLite(t).Partition(0, q1Schema())
	assert.ErrorIs(t, err, storage.ErrInvalidSurveyID)
}

func TestPartitionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	a := newPartition(t, db, 1, q1Schema())
	b := newPartition(t, db, 2, q1Schema())

	_, err := a.Start(ctx, api.StartInput{Lang: "en", Values: map[string]any{"Q1.value": "a"}})
	require.NoError(t, err)

	all, err := b.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, "responses_2", b.Table())
}
