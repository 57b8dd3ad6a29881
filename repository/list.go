package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/fastygo/todosync/domain"
)

// StoredRecord is a server-side record with the device that last touched it.
type StoredRecord struct {
	domain.Record
	LastUpdatedBy string
}

// ListRepository persists every owner's authoritative list on the server.
type ListRepository interface {
	List(ctx context.Context, ownerID string) ([]StoredRecord, int64, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*StoredRecord, int64, error)
	// The mutating calls fail with domain.ErrRevisionMismatch when
	// knownRevision differs from the stored one, and return the new revision.
	Replace(ctx context.Context, ownerID string, knownRevision int64, records []StoredRecord) (int64, error)
	Upsert(ctx context.Context, ownerID string, knownRevision int64, record StoredRecord) (int64, error)
	Delete(ctx context.Context, ownerID string, knownRevision int64, id uuid.UUID) (*StoredRecord, int64, error)
}
