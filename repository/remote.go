package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/fastygo/todosync/domain"
)

// RemoteClient talks to the authoritative list. Failures are classified as
// domain TRANSIENT (worth retrying) or PERMANENT errors.
type RemoteClient interface {
	FetchList(ctx context.Context) ([]domain.Record, error)
	// SyncList uploads the full local list and returns the reconciled one.
	SyncList(ctx context.Context, records []domain.Record) ([]domain.Record, error)
	Create(ctx context.Context, record domain.Record) (*domain.Record, error)
	Update(ctx context.Context, record domain.Record) (*domain.Record, error)
	Delete(ctx context.Context, id uuid.UUID) (*domain.Record, error)
}
