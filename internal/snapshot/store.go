// Package snapshot persists the variables of study runs in SQLite so a later
// run can reload them.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/studygrid/internal/datamanager"
	"github.com/specialistvlad/studygrid/internal/vartype"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	study       TEXT NOT NULL,
	status      TEXT NOT NULL,
	passes      INTEGER NOT NULL DEFAULT 0,
	iterations  INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_values (
	run_id   TEXT NOT NULL,
	name     TEXT NOT NULL,
	type     TEXT NOT NULL,
	io_type  TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (run_id, name),
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_runs_study ON runs(study, created_at);
`

// timeLayout has a fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one recorded study run.
type Run struct {
	ID         string
	Study      string
	Status     string
	Passes     int
	Iterations int
	Message    string
	CreatedAt  time.Time
	Variables  int
}

// Value is one stored variable.
type Value struct {
	Name   string
	Type   vartype.Type
	IOType datamanager.IOType
	Value  any
}

// Store manages run snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records run with the given variables in one transaction. An empty
// run ID gets a fresh UUID and a zero CreatedAt is set to now.
func (s *Store) Save(ctx context.Context, run Run, vars []datamanager.Variable) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, study, status, passes, iterations, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Study, run.Status, run.Passes, run.Iterations, run.Message,
		run.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_values (run_id, name, type, io_type, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, v := range vars {
		raw, err := json.Marshal(sanitize(v.Current()))
		if err != nil {
			return Run{}, fmt.Errorf("encode '%s': %w", v.FullName, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, v.FullName, string(v.Type), string(v.IOType), string(raw)); err != nil {
			return Run{}, fmt.Errorf("insert '%s': %w", v.FullName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit: %w", err)
	}
	run.Variables = len(vars)
	return run, nil
}

const runColumns = `
	SELECT r.id, r.study, r.status, r.passes, r.iterations, r.message, r.created_at,
	       (SELECT COUNT(*) FROM run_values v WHERE v.run_id = r.id)
	FROM runs r`

// Runs lists the runs of study, newest first. An empty study lists every run.
func (s *Store) Runs(ctx context.Context, study string) ([]Run, error) {
	query := runColumns
	var args []any
	if study != "" {
		query += ` WHERE r.study = ?`
		args = append(args, study)
	}
	query += ` ORDER BY r.created_at DESC, r.rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, runColumns+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Latest returns the newest succeeded run of study.
func (s *Store) Latest(ctx context.Context, study string) (Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		runColumns+` WHERE r.study = ? AND r.status = ? ORDER BY r.created_at DESC, r.rowid DESC LIMIT 1`,
		study, StatusSucceeded))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: no succeeded run of study '%s'", ErrRunNotFound, study)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var createdAt string
	if err := row.Scan(&run.ID, &run.Study, &run.Status, &run.Passes, &run.Iterations, &run.Message, &createdAt, &run.Variables); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: bad created_at: %w", run.ID, err)
	}
	run.CreatedAt = t
	return run, nil
}

// Values returns the stored variables of a run sorted by name.
func (s *Store) Values(ctx context.Context, id string) ([]Value, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, io_type, value FROM run_values WHERE run_id = ? ORDER BY name`, id)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	var out []Value
	for rows.Next() {
		var v Value
		var typ, ioType, raw string
		if err := rows.Scan(&v.Name, &typ, &ioType, &raw); err != nil {
			return nil, err
		}
		v.Type = vartype.Type(typ)
		v.IOType = datamanager.IOType(ioType)
		if v.Value, err = decode(v.Type, raw); err != nil {
			return nil, fmt.Errorf("decode '%s': %w", v.Name, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Inputs keeps the editable-side values: inputs that hold a value.
func Inputs(values []Value) map[string]any {
	out := make(map[string]any)
	for _, v := range values {
		if v.IOType == datamanager.In && v.Value != nil {
			out[v.Name] = v.Value
		}
	}
	return out
}

func decode(t vartype.Type, raw string) (any, error) {
	if t == vartype.Dataframe {
		if raw == "null" {
			return nil, nil
		}
		tbl := &vartype.Table{}
		if err := json.Unmarshal([]byte(raw), tbl); err != nil {
			return nil, err
		}
		return tbl, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	if coerced, err := vartype.Coerce(t, v); err == nil {
		return coerced, nil
	}
	return v, nil
}

// sanitize replaces the floats JSON cannot carry with null.
func sanitize(v any) any {
	switch tv := v.(type) {
	case float64:
		if math.IsNaN(tv) || math.IsInf(tv, 0) {
			return nil
		}
	case []float64:
		out := make([]any, len(tv))
		for i, f := range tv {
			out[i] = sanitize(f)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = sanitize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = sanitize(e)
		}
		return out
	case map[int]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[fmt.Sprint(k)] = sanitize(e)
		}
		return out
	case *vartype.Table:
		rows := make([][]any, len(tv.Rows))
		for i, r := range tv.Rows {
			rows[i] = sanitize(r).([]any)
		}
		return &vartype.Table{Columns: tv.Columns, Rows: rows}
	}
	return v
}
