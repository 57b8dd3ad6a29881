package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/repository"
)

const itemColumns = `id, text, importance, deadline, done, color, created_at, modified_at, last_updated_by`

const upsertItemSQL = `
	INSERT INTO todo_items (owner_id, id, text, importance, deadline, done, color, created_at, modified_at, last_updated_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (owner_id, id) DO UPDATE SET
		text = EXCLUDED.text,
		importance = EXCLUDED.importance,
		deadline = EXCLUDED.deadline,
		done = EXCLUDED.done,
		color = EXCLUDED.color,
		created_at = EXCLUDED.created_at,
		modified_at = EXCLUDED.modified_at,
		last_updated_by = EXCLUDED.last_updated_by
	`

type listRepository struct {
	pool *pgxpool.Pool
}

// NewListRepository returns a Postgres-backed implementation of ListRepository.
func NewListRepository(pool *pgxpool.Pool) repository.ListRepository {
	return &listRepository{pool: pool}
}

func (r *listRepository) List(ctx context.Context, ownerID string) ([]repository.StoredRecord, int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	revision, err := readRevision(ctx, tx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + itemColumns + ` FROM todo_items WHERE owner_id = $1 ORDER BY created_at DESC, id`
	rows, err := tx.Query(ctx, query, ownerID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []repository.StoredRecord
	for rows.Next() {
		rec, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, revision, tx.Commit(ctx)
}

func (r *listRepository) Get(ctx context.Context, ownerID string, id uuid.UUID) (*repository.StoredRecord, int64, error) {
	revision, err := readRevision(ctx, r.pool, ownerID)
	if err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + itemColumns + ` FROM todo_items WHERE owner_id = $1 AND id = $2`
	rec, err := scanItem(r.pool.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, revision, domain.ErrRecordNotFound
		}
		return nil, 0, err
	}
	return rec, revision, nil
}

func (r *listRepository) Replace(ctx context.Context, ownerID string, knownRevision int64, records []repository.StoredRecord) (int64, error) {
	return r.mutate(ctx, ownerID, knownRevision, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM todo_items WHERE owner_id = $1`, ownerID); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(upsertItemSQL, itemArgs(ownerID, rec)...)
		}
		results := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return err
			}
		}
		return results.Close()
	})
}

func (r *listRepository) Upsert(ctx context.Context, ownerID string, knownRevision int64, record repository.StoredRecord) (int64, error) {
	return r.mutate(ctx, ownerID, knownRevision, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertItemSQL, itemArgs(ownerID, record)...)
		return err
	})
}

func (r *listRepository) Delete(ctx context.Context, ownerID string, knownRevision int64, id uuid.UUID) (*repository.StoredRecord, int64, error) {
	var deleted *repository.StoredRecord
	revision, err := r.mutate(ctx, ownerID, knownRevision, func(tx pgx.Tx) error {
		query := `DELETE FROM todo_items WHERE owner_id = $1 AND id = $2 RETURNING ` + itemColumns
		rec, err := scanItem(tx.QueryRow(ctx, query, ownerID, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRecordNotFound
			}
			return err
		}
		deleted = rec
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return deleted, revision, nil
}

// mutate runs fn in a transaction that holds the owner's revision row and
// bumps it on success.
func (r *listRepository) mutate(ctx context.Context, ownerID string, knownRevision int64, fn func(tx pgx.Tx) error) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO list_revisions (owner_id, revision) VALUES ($1, 0) ON CONFLICT (owner_id) DO NOTHING`,
		ownerID); err != nil {
		return 0, err
	}

	var current int64
	if err := tx.QueryRow(ctx,
		`SELECT revision FROM list_revisions WHERE owner_id = $1 FOR UPDATE`,
		ownerID).Scan(&current); err != nil {
		return 0, err
	}
	if current != knownRevision {
		return current, domain.ErrRevisionMismatch
	}

	if err := fn(tx); err != nil {
		return 0, err
	}

	var next int64
	if err := tx.QueryRow(ctx,
		`UPDATE list_revisions SET revision = revision + 1, updated_at = NOW() WHERE owner_id = $1 RETURNING revision`,
		ownerID).Scan(&next); err != nil {
		return 0, err
	}
	return next, tx.Commit(ctx)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readRevision(ctx context.Context, q querier, ownerID string) (int64, error) {
	var revision int64
	err := q.QueryRow(ctx, `SELECT revision FROM list_revisions WHERE owner_id = $1`, ownerID).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return revision, err
}

func itemArgs(ownerID string, rec repository.StoredRecord) []any {
	r := rec.Record.Normalized()
	return []any{
		ownerID,
		r.ID,
		r.Text,
		string(r.Importance),
		nullTime(r.Deadline),
		r.IsDone,
		r.TextColor,
		r.CreatedAt,
		nullTime(r.ModifiedAt),
		rec.LastUpdatedBy,
	}
}

func scanItem(row pgx.Row) (*repository.StoredRecord, error) {
	var (
		rec        repository.StoredRecord
		importance string
		deadline   *time.Time
		modifiedAt *time.Time
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Text,
		&importance,
		&deadline,
		&rec.IsDone,
		&rec.TextColor,
		&rec.CreatedAt,
		&modifiedAt,
		&rec.LastUpdatedBy,
	); err != nil {
		return nil, err
	}
	rec.Importance = domain.Importance(importance)
	rec.Deadline = deadline
	rec.ModifiedAt = modifiedAt
	rec.Record = rec.Record.Normalized()
	return &rec, nil
}
