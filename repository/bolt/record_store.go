package bolt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/internal/infrastructure/boltdb"
	"github.com/fastygo/todosync/repository"
)

const (
	recordsBucket = "records"
	metaBucket    = "meta"
)

var dirtyKey = []byte("dirty")

// recordStore keeps each record as a structured JSON document keyed by id.
type recordStore struct {
	db *bbolt.DB
}

// Open creates a BoltDB-backed RecordStore at path.
func Open(path string) (repository.RecordStore, error) {
	db, err := boltdb.Open(path, recordsBucket, metaBucket)
	if err != nil {
		return nil, domain.StorageError("open", err)
	}
	return &recordStore{db: db}, nil
}

func (s *recordStore) LoadAll(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StorageError("load", err)
	}

	var records []domain.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).ForEach(func(k, v []byte) error {
			rec, err := domain.UnmarshalRecord(v)
			if err != nil {
				return fmt.Errorf("record %q: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, domain.StorageError("load", err)
	}
	return records, nil
}

func (s *recordStore) ReplaceAll(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError("replace", err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(recordsBucket)) != nil {
			if err := tx.DeleteBucket([]byte(recordsBucket)); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket([]byte(recordsBucket))
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := putRecord(bucket, rec); err != nil {
				return err
			}
		}
		return nil
	})
	return domain.StorageError("replace", err)
}

func (s *recordStore) Upsert(ctx context.Context, record domain.Record) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError("upsert", err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx.Bucket([]byte(recordsBucket)), record)
	})
	return domain.StorageError("upsert", err)
}

func (s *recordStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError("delete", err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Delete([]byte(id.String()))
	})
	return domain.StorageError("delete", err)
}

func (s *recordStore) Dirty(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, domain.StorageError("read dirty flag", err)
	}

	var dirty bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		dirty = string(tx.Bucket([]byte(metaBucket)).Get(dirtyKey)) == "1"
		return nil
	})
	if err != nil {
		return false, domain.StorageError("read dirty flag", err)
	}
	return dirty, nil
}

func (s *recordStore) SetDirty(ctx context.Context, dirty bool) error {
	if err := ctx.Err(); err != nil {
		return domain.StorageError("write dirty flag", err)
	}

	value := []byte("0")
	if dirty {
		value = []byte("1")
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).Put(dirtyKey, value)
	})
	return domain.StorageError("write dirty flag", err)
}

// Close closes the Bolt database.
func (s *recordStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func putRecord(bucket *bbolt.Bucket, rec domain.Record) error {
	payload, err := domain.MarshalRecord(rec)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(rec.ID.String()), payload)
}
