package list

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/repository"
)

// syncAttempts bounds how often a whole-list merge is redone when another
// device changed the list between read and write.
const syncAttempts = 3

// UseCase serves the authoritative lists.
type UseCase struct {
	lists  repository.ListRepository
	logger *zap.Logger
}

func New(lists repository.ListRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		lists:  lists,
		logger: logger,
	}
}

func (uc *UseCase) List(ctx context.Context, ownerID string) ([]repository.StoredRecord, int64, error) {
	return uc.lists.List(ctx, ownerID)
}

func (uc *UseCase) Get(ctx context.Context, ownerID string, id uuid.UUID) (*repository.StoredRecord, int64, error) {
	return uc.lists.Get(ctx, ownerID, id)
}

// Sync replaces the owner's list with the uploaded one. Records present on
// both sides keep whichever version changed last; records only the server
// knows are dropped.
func (uc *UseCase) Sync(ctx context.Context, ownerID, deviceID string, incoming []domain.Record) ([]repository.StoredRecord, int64, error) {
	uploaded := stamp(incoming, deviceID)

	for attempt := 1; ; attempt++ {
		current, revision, err := uc.lists.List(ctx, ownerID)
		if err != nil {
			return nil, 0, err
		}

		merged := Merge(current, uploaded)
		next, err := uc.lists.Replace(ctx, ownerID, revision, merged)
		if errors.Is(err, domain.ErrRevisionMismatch) && attempt < syncAttempts {
			uc.logger.Debug("list changed during sync, merging again",
				zap.String("owner_id", ownerID),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, 0, err
		}

		uc.logger.Info("list synchronized",
			zap.String("owner_id", ownerID),
			zap.String("device_id", deviceID),
			zap.Int("uploaded", len(incoming)),
			zap.Int("stored", len(merged)),
			zap.Int64("revision", next))
		return merged, next, nil
	}
}

// Create stores a new record. Creating an id that already exists overwrites
// it, so a retried create is harmless.
func (uc *UseCase) Create(ctx context.Context, ownerID, deviceID string, knownRevision int64, rec domain.Record) (repository.StoredRecord, int64, error) {
	if err := rec.Validate(); err != nil {
		return repository.StoredRecord{}, 0, err
	}
	stored := repository.StoredRecord{Record: rec.Normalized(), LastUpdatedBy: deviceID}
	revision, err := uc.lists.Upsert(ctx, ownerID, knownRevision, stored)
	if err != nil {
		return repository.StoredRecord{}, 0, err
	}
	return stored, revision, nil
}

// Update replaces an existing record.
func (uc *UseCase) Update(ctx context.Context, ownerID, deviceID string, knownRevision int64, rec domain.Record) (repository.StoredRecord, int64, error) {
	if err := rec.Validate(); err != nil {
		return repository.StoredRecord{}, 0, err
	}
	if _, _, err := uc.lists.Get(ctx, ownerID, rec.ID); err != nil {
		return repository.StoredRecord{}, 0, err
	}
	stored := repository.StoredRecord{Record: rec.Normalized(), LastUpdatedBy: deviceID}
	revision, err := uc.lists.Upsert(ctx, ownerID, knownRevision, stored)
	if err != nil {
		return repository.StoredRecord{}, 0, err
	}
	return stored, revision, nil
}

func (uc *UseCase) Delete(ctx context.Context, ownerID string, knownRevision int64, id uuid.UUID) (*repository.StoredRecord, int64, error) {
	return uc.lists.Delete(ctx, ownerID, knownRevision, id)
}

// Merge resolves an uploaded list against the stored one, last writer wins
// per record. The result keeps the uploaded order.
func Merge(current, uploaded []repository.StoredRecord) []repository.StoredRecord {
	stored := make(map[uuid.UUID]repository.StoredRecord, len(current))
	for _, rec := range current {
		stored[rec.ID] = rec
	}

	merged := make([]repository.StoredRecord, 0, len(uploaded))
	seen := make(map[uuid.UUID]struct{}, len(uploaded))
	for _, rec := range uploaded {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		if existing, ok := stored[rec.ID]; ok && existing.LastChange().After(rec.LastChange()) {
			merged = append(merged, existing)
			continue
		}
		merged = append(merged, rec)
	}
	return merged
}

func stamp(records []domain.Record, deviceID string) []repository.StoredRecord {
	out := make([]repository.StoredRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, repository.StoredRecord{Record: rec.Normalized(), LastUpdatedBy: deviceID})
	}
	return out
}
