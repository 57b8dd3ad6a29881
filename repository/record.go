package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/fastygo/todosync/domain"
)

// RecordStore is the durable on-device copy of the list plus the dirty flag.
// Every failure is reported as a domain STORAGE error.
type RecordStore interface {
	LoadAll(ctx context.Context) ([]domain.Record, error)
	ReplaceAll(ctx context.Context, records []domain.Record) error
	Upsert(ctx context.Context, record domain.Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	Dirty(ctx context.Context) (bool, error)
	SetDirty(ctx context.Context, dirty bool) error
	Close() error
}
