package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/rhuss/umfrage/pkg/api"
	"github.com/rhuss/umfrage/pkg/debug"
	"github.com/rhuss/umfrage/pkg/observability"
	"github.com/rhuss/umfrage/pkg/storage"
)

// maxEditAttempts bounds the compare-and-swap retries of Edit.
const maxEditAttempts = 5

// Partition is the response table of one survey, bound to the schema in
// force when it was opened.
type Partition struct {
	db       *DB
	surveyID int64
	table    string
	schema   api.Schema
}

// Ensure Partition implements storage.ResponseStore at compile time.
var _ storage.ResponseStore = (*Partition)(nil)

// Partition returns the response store of a survey. It does not touch the
// database; call CreatePartition to create the table.
func (db *DB) Partition(surveyID int64, schema api.Schema) (*Partition, error) {
	table, err := storage.PartitionName(surveyID)
	if err != nil {
		return nil, err
	}
	return &Partition{
		db:       db,
		surveyID: surveyID,
		table:    table,
		schema:   schema,
	}, nil
}

// Table returns the partition's table name.
func (p *Partition) Table() string {
	return p.table
}

// CreatePartition creates the response table if it does not exist yet.
func (p *Partition) CreatePartition(ctx context.Context) error {
	d := p.db.dialect
	stmt := fmt.Sprintf(d.partitionDDL, d.quote(p.table))
	if _, err := p.db.exec(ctx, "create_partition", stmt); err != nil {
		if d.duplicateObject(err) {
			debug.Log("storage", "partition created concurrently", "table", p.table)
			return nil
		}
		return fmt.Errorf("creating partition %s: %w", p.table, err)
	}
	return nil
}

// DropPartition removes the response table. A missing table is not an error.
func (p *Partition) DropPartition(ctx context.Context) error {
	stmt := "DROP TABLE IF EXISTS " + p.db.dialect.quote(p.table)
	if _, err := p.db.exec(ctx, "drop_partition", stmt); err != nil {
		return fmt.Errorf("dropping partition %s: %w", p.table, err)
	}
	return nil
}

// Start inserts a new response with the start date set to now.
func (p *Partition) Start(ctx context.Context, in api.StartInput) (int64, error) {
	in.Lang = api.NormalizeLang(in.Lang)
	if apiErr := api.ValidateLang("lang", in.Lang); apiErr != nil {
		return 0, apiErr
	}
	nav, err := in.NavigationIndex.Text()
	if err != nil {
		return 0, api.NewInvalidRequestError("navigation_index", err.Error())
	}
	blob, err := p.db.codec.Encode(in.Values, p.schema)
	if err != nil {
		return 0, err
	}

	stmt, args := insertStmt(p.db.dialect, p.table, []assignment{
		bind(colNavIndex, nav),
		bind(colLang, in.Lang),
		bind(colStartDate, now()),
		bind(colUserValues, blob),
	})

	if p.db.dialect.returningID {
		var id int64
		if err := p.db.queryRow(ctx, "start", stmt, args, &id); err != nil {
			return 0, fmt.Errorf("inserting response: %w", err)
		}
		return id, nil
	}

	res, err := p.db.exec(ctx, "start", stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting response: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading response id: %w", err)
	}
	return id, nil
}

// Get returns one response, or storage.ErrNotFound.
func (p *Partition) Get(ctx context.Context, id int64) (*api.ResponseRow, error) {
	b := selectStmt(p.db.dialect, p.table, responseColumns, []assignment{bind(colID, id)})

	p.db.logStatement("get", b.String())
	start := time.Now()
	row := p.db.sql.QueryRowContext(ctx, b.String(), b.args...)
	r, err := p.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		observability.ObserveStoreOperation("get", start, nil)
		return nil, fmt.Errorf("response %d: %w", id, storage.ErrNotFound)
	}
	observability.ObserveStoreOperation("get", start, err)
	if err != nil {
		return nil, fmt.Errorf("querying response: %w", err)
	}
	return r, nil
}

// All returns every response in the partition, ordered by id. The whole
// result is read into memory before it is returned.
func (p *Partition) All(ctx context.Context) ([]*api.ResponseRow, error) {
	b := selectStmt(p.db.dialect, p.table, responseColumns, nil)
	b.write(" ORDER BY ", p.db.dialect.quote(colID))
	return p.queryRows(ctx, "all", b)
}

// List returns the responses with an id greater than opts.After, ordered by
// id, at most opts.Limit of them.
func (p *Partition) List(ctx context.Context, opts storage.ListOptions) (*storage.ResponseList, error) {
	opts = opts.Normalize()
	d := p.db.dialect

	b := selectStmt(d, p.table, responseColumns, nil)
	b.write(" WHERE ", d.quote(colID), " > ").arg(opts.After)
	b.write(" ORDER BY ", d.quote(colID), " LIMIT ").arg(opts.Limit + 1)

	rows, err := p.queryRows(ctx, "list", b)
	if err != nil {
		return nil, err
	}

	list := &storage.ResponseList{Data: rows}
	if len(rows) > opts.Limit {
		list.HasMore = true
		list.Data = rows[:opts.Limit]
	}
	if len(list.Data) > 0 {
		list.FirstID = list.Data[0].ID
		list.LastID = list.Data[len(list.Data)-1].ID
	}
	return list, nil
}

// Edit merges patch into a response. Patch values win over stored values
// with the same key; other stored values are kept. Only the structural
// columns present in patch are updated. The update is a compare-and-swap on
// the row version and is retried when a concurrent edit wins.
func (p *Partition) Edit(ctx context.Context, id int64, patch api.EditInput) (*api.ResponseRow, error) {
	var nav *string
	if patch.NavigationIndex != nil {
		text, err := patch.NavigationIndex.Text()
		if err != nil {
			return nil, api.NewInvalidRequestError("navigation_index", err.Error())
		}
		nav = &text
	}
	if patch.Lang != nil {
		lang := api.NormalizeLang(*patch.Lang)
		patch.Lang = &lang
		if apiErr := api.ValidateLang("lang", lang); apiErr != nil {
			return nil, apiErr
		}
	}
	var submit *time.Time
	if patch.SubmitDate != nil {
		t := patch.SubmitDate.UTC().Truncate(time.Microsecond)
		submit = &t
	}

	for attempt := 1; attempt <= maxEditAttempts; attempt++ {
		current, err := p.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		merged := make(map[string]any, len(current.Values)+len(patch.Values))
		maps.Copy(merged, current.Values)
		maps.Copy(merged, patch.Values)

		blob, err := p.db.codec.Encode(merged, p.schema)
		if err != nil {
			return nil, err
		}

		set := make([]assignment, 0, 5)
		if nav != nil {
			set = append(set, bind(colNavIndex, *nav))
		}
		if patch.Lang != nil {
			set = append(set, bind(colLang, *patch.Lang))
		}
		if submit != nil {
			set = append(set, bind(colSubmitDate, *submit))
		}
		set = append(set,
			bind(colUserValues, blob),
			assignment{column: colVersion, expr: p.db.dialect.quote(colVersion) + " + 1"},
		)

		stmt, args := updateStmt(p.db.dialect, p.table, set, []assignment{
			bind(colID, id),
			bind(colVersion, current.Version),
		})
		res, err := p.db.exec(ctx, "edit", stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("updating response %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("updating response %d: %w", id, err)
		}
		if n == 1 {
			// Decode the blob just written so values come back normalized.
			values, err := p.db.codec.Decode(blob, p.schema)
			if err != nil {
				return nil, err
			}
			current.Values = values
			current.Version++
			if nav != nil {
				current.NavigationIndex = api.NavigationIndex(*nav)
			}
			if patch.Lang != nil {
				current.Lang = *patch.Lang
			}
			if submit != nil {
				current.SubmitDate = submit
			}
			return current, nil
		}

		observability.EditConflicts.Inc()
		debug.Log("storage", "edit lost compare-and-swap", "table", p.table, "id", id, "attempt", attempt)
	}

	return nil, fmt.Errorf("editing response %d after %d attempts: %w", id, maxEditAttempts, storage.ErrConflict)
}

func (p *Partition) queryRows(ctx context.Context, op string, b *builder) ([]*api.ResponseRow, error) {
	rows, err := p.db.query(ctx, op, b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("querying responses: %w", err)
	}
	defer rows.Close()

	result := []*api.ResponseRow{}
	for rows.Next() {
		r, err := p.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating responses: %w", err)
	}
	return result, nil
}

func (p *Partition) scan(row rowScanner) (*api.ResponseRow, error) {
	var (
		r      api.ResponseRow
		nav    string
		start  nullTime
		submit nullTime
		blob   sql.NullString
	)
	if err := row.Scan(&r.ID, &nav, &start, &submit, &r.Lang, &blob, &r.Version); err != nil {
		return nil, err
	}

	values, err := p.db.codec.Decode(blob.String, p.schema)
	if err != nil {
		return nil, fmt.Errorf("decoding response %d: %w", r.ID, err)
	}

	r.NavigationIndex = api.NavigationIndex(nav)
	r.StartDate = start.Time
	r.SubmitDate = submit.ptr()
	r.Values = values
	return &r, nil
}

// now is the start timestamp of new responses, truncated to the
// microsecond precision of the supported engines.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// ResponseStore is Partition behind the storage.ResponseStore interface.
func (db *DB) ResponseStore(surveyID int64, schema api.Schema) (storage.ResponseStore, error) {
	p, err := db.Partition(surveyID, schema)
	if err != nil {
		return nil, err
	}
	return p, nil
}
