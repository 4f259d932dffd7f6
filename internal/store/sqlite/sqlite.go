// Package sqlite is the durable backend of the record store: JSON documents
// in a single SQLite table, one row per record.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/store"

	_ "modernc.org/sqlite"
)

const backendName = "sqlite"

// Store implements store.Store on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// Open creates the database directory, opens the database, and applies
// migrations. Failures are reported as core.StoreUnavailableError.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, unavailable(fmt.Errorf("create db directory: %w", err))
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, unavailable(fmt.Errorf("open sqlite database: %w", err))
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable(fmt.Errorf("ping database: %w", err))
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, unavailable(fmt.Errorf("set busy timeout: %w", err))
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, unavailable(err)
	}

	slog.InfoContext(ctx, "SQLite store opened", "db_path", dbPath)
	return &Store{db: db, path: dbPath}, nil
}

func (s *Store) Kind() string { return backendName }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrap(ctx, "ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Find(ctx context.Context, collection string, filter store.Filter, order ...store.Sort) ([]store.Record, error) {
	if err := store.ValidateQuery(collection, filter, order...); err != nil {
		return nil, err
	}

	where, args := buildWhere(collection, filter)
	query := "SELECT data FROM documents WHERE " + where + " ORDER BY "
	for _, o := range order {
		query += "json_extract(data, ?)"
		if o.Desc {
			query += " DESC"
		}
		query += ", "
		args = append(args, path(o.Field))
	}
	query += "seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(ctx, "find", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, wrap(ctx, "scan", err)
		}
		rec, err := store.DecodeRecord([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ctx, "iterate", err)
	}
	if out == nil {
		out = []store.Record{}
	}
	return out, nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter store.Filter) (store.Record, error) {
	if err := store.ValidateQuery(collection, filter); err != nil {
		return nil, err
	}

	where, args := buildWhere(collection, filter)
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM documents WHERE "+where+" ORDER BY seq LIMIT 1", args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoRecord
	}
	if err != nil {
		return nil, wrap(ctx, "find one", err)
	}
	return store.DecodeRecord([]byte(data))
}

func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (string, error) {
	if err := store.ValidateCollection(collection); err != nil {
		return "", err
	}
	return s.insert(ctx, s.db, collection, rec)
}

func (s *Store) InsertMany(ctx context.Context, collection string, recs []store.Record) error {
	if err := store.ValidateCollection(collection); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(ctx, "begin", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if _, err := s.insert(ctx, tx, collection, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap(ctx, "commit", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, db execer, collection string, rec store.Record) (string, error) {
	doc := rec.Clone()
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	doc[store.IDField] = id

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)", collection, id, string(data))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", fmt.Errorf("%w: %s/%s", store.ErrDuplicateID, collection, id)
		}
		return "", wrap(ctx, "insert", err)
	}
	return id, nil
}

func (s *Store) UpdateOne(ctx context.Context, collection string, match store.Filter, patch store.Record) (int64, error) {
	if err := store.ValidateQuery(collection, match); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap(ctx, "begin", err)
	}
	defer tx.Rollback()

	where, args := buildWhere(collection, match)
	var (
		seq  int64
		data string
	)
	err = tx.QueryRowContext(ctx, "SELECT seq, data FROM documents WHERE "+where+" ORDER BY seq LIMIT 1", args...).Scan(&seq, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(ctx, "update lookup", err)
	}

	doc, err := store.DecodeRecord([]byte(data))
	if err != nil {
		return 0, err
	}
	for k, v := range patch {
		if k == store.IDField {
			continue
		}
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}

	res, err := tx.ExecContext(ctx, "UPDATE documents SET data = ? WHERE seq = ?", string(merged), seq)
	if err != nil {
		return 0, wrap(ctx, "update", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap(ctx, "commit", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteOne(ctx context.Context, collection string, match store.Filter) (int64, error) {
	if err := store.ValidateQuery(collection, match); err != nil {
		return 0, err
	}

	where, args := buildWhere(collection, match)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE seq = (SELECT seq FROM documents WHERE "+where+" ORDER BY seq LIMIT 1)", args...)
	if err != nil {
		return 0, wrap(ctx, "delete", err)
	}
	return res.RowsAffected()
}

// buildWhere renders the filter as a parameterised clause. Field names are
// validated before this is called and are bound as JSON paths.
func buildWhere(collection string, f store.Filter) (string, []any) {
	clauses := []string{"collection = ?"}
	args := []any{collection}

	for _, c := range f.Conditions {
		clauses = append(clauses, "json_extract(data, ?) = ?")
		args = append(args, path(c.Field), sqlValue(c.Value))
	}

	// yyyy-MM-dd is fixed width, so text comparison is calendar order.
	if r := f.Range; r != nil {
		clauses = append(clauses, "json_type(data, ?) = 'text'")
		args = append(args, path(r.Field))
		if !r.From.IsZero() {
			clauses = append(clauses, "json_extract(data, ?) >= ?")
			args = append(args, path(r.Field), r.From.String())
		}
		if !r.To.IsZero() {
			clauses = append(clauses, "json_extract(data, ?) <= ?")
			args = append(args, path(r.Field), r.To.String())
		}
	}

	return strings.Join(clauses, " AND "), args
}

func path(field string) string {
	return "$." + field
}

// sqlValue converts filter values to what json_extract yields for the
// same JSON value.
func sqlValue(v any) any {
	switch x := store.Canonical(v).(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return x
	}
}

func unavailable(err error) error {
	return &core.StoreUnavailableError{Backend: backendName, Err: err}
}

// wrap marks driver failures as unavailability. Context errors pass through.
func wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return unavailable(fmt.Errorf("%s: %w", op, err))
}
