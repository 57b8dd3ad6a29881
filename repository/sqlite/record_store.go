package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/todosync/domain"
	sqliteinfra "github.com/fastygo/todosync/internal/infrastructure/sqlite"
	"github.com/fastygo/todosync/repository"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS todo_list (
		id          TEXT PRIMARY KEY,
		text        TEXT NOT NULL,
		importance  TEXT NOT NULL DEFAULT 'basic',
		deadline    INTEGER,
		is_done     INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL,
		modified_at INTEGER,
		text_color  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

const (
	selectRecordsSQL = `SELECT id, text, importance, deadline, is_done, created_at, modified_at, text_color FROM todo_list`

	upsertRecordSQL = `INSERT INTO todo_list (id, text, importance, deadline, is_done, created_at, modified_at, text_color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			importance = excluded.importance,
			deadline = excluded.deadline,
			is_done = excluded.is_done,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			text_color = excluded.text_color`

	dirtyKey = "dirty"
)

// recordStore keeps records as rows of the todo_list table; times are stored
// as Unix milliseconds.
type recordStore struct {
	db *sql.DB
}

// Open creates a SQLite-backed RecordStore at path.
func Open(ctx context.Context, path string) (repository.RecordStore, error) {
	db, err := sqliteinfra.Open(ctx, path, schema...)
	if err != nil {
		return nil, domain.StorageError("open", err)
	}
	return &recordStore{db: db}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *recordStore) LoadAll(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecordsSQL)
	if err != nil {
		return nil, domain.StorageError("load", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, domain.StorageError("load", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("load", err)
	}
	return records, nil
}

func (s *recordStore) ReplaceAll(ctx context.Context, records []domain.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageError("replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM todo_list`); err != nil {
		return domain.StorageError("replace", err)
	}
	for _, rec := range records {
		if err := upsert(ctx, tx, rec); err != nil {
			return domain.StorageError("replace", err)
		}
	}
	return domain.StorageError("replace", tx.Commit())
}

func (s *recordStore) Upsert(ctx context.Context, record domain.Record) error {
	return domain.StorageError("upsert", upsert(ctx, s.db, record))
}

func (s *recordStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM todo_list WHERE id = ?`, id.String())
	return domain.StorageError("delete", err)
}

func (s *recordStore) Dirty(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, dirtyKey).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, domain.StorageError("read dirty flag", err)
	}
	return value == "1", nil
}

func (s *recordStore) SetDirty(ctx context.Context, dirty bool) error {
	value := "0"
	if dirty {
		value = "1"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		dirtyKey, value)
	return domain.StorageError("write dirty flag", err)
}

// Close closes the database after checkpointing the WAL.
func (s *recordStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func upsert(ctx context.Context, db execer, rec domain.Record) error {
	rec = rec.Normalized()
	done := 0
	if rec.IsDone {
		done = 1
	}
	_, err := db.ExecContext(ctx, upsertRecordSQL,
		rec.ID.String(),
		rec.Text,
		string(rec.Importance),
		millisPtr(rec.Deadline),
		done,
		rec.CreatedAt.UnixMilli(),
		millisPtr(rec.ModifiedAt),
		rec.TextColor,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.Record, error) {
	var (
		rec        domain.Record
		id         string
		importance string
		deadline   sql.NullInt64
		done       int
		createdAt  int64
		modifiedAt sql.NullInt64
	)
	if err := row.Scan(&id, &rec.Text, &importance, &deadline, &done, &createdAt, &modifiedAt, &rec.TextColor); err != nil {
		return domain.Record{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.Record{}, err
	}
	rec.ID = parsed
	rec.Importance = domain.Importance(importance).Normalize()
	rec.Deadline = timePtr(deadline)
	rec.IsDone = done != 0
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.ModifiedAt = timePtr(modifiedAt)
	return rec, nil
}

func millisPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
