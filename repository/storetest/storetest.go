// Package storetest holds the behavior every repository.RecordStore backend must share.
package storetest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/repository"
)

// Opener opens (or reopens) a store at path.
type Opener func(t *testing.T, path string) repository.RecordStore

// Corrupter writes an entry the store cannot decode, bypassing its API.
type Corrupter func(t *testing.T, store repository.RecordStore)

// Run exercises a RecordStore implementation.
func Run(t *testing.T, open Opener, corrupt Corrupter) {
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		store := open(t, t.TempDir()+"/todo.db")
		defer store.Close()

		records, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)

		dirty, err := store.Dirty(ctx)
		require.NoError(t, err)
		assert.False(t, dirty)
	})

	t.Run("upsert inserts then replaces", func(t *testing.T) {
		store := open(t, t.TempDir()+"/todo.db")
		defer store.Close()

		recs := Fixture()
		for _, rec := range recs {
			require.NoError(t, store.Upsert(ctx, rec))
		}
		edited := recs[0].Edited("Buy oat milk", domain.ImportanceImportant, nil, "", recs[0].CreatedAt.Add(time.Minute))
		require.NoError(t, store.Upsert(ctx, edited))

		got, err := store.LoadAll(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, []domain.Record{edited, recs[1]}, got)
	})

	t.Run("delete", func(t *testing.T) {
		store := open(t, t.TempDir()+"/todo.db")
		defer store.Close()

		recs := Fixture()
		for _, rec := range recs {
			require.NoError(t, store.Upsert(ctx, rec))
		}
		require.NoError(t, store.Delete(ctx, recs[0].ID))
		require.NoError(t, store.Delete(ctx, uuid.New()), "unknown ids are ignored")

		got, err := store.LoadAll(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, recs[1:], got)
	})

	t.Run("replace all", func(t *testing.T) {
		store := open(t, t.TempDir()+"/todo.db")
		defer store.Close()

		recs := Fixture()
		require.NoError(t, store.Upsert(ctx, recs[0]))
		require.NoError(t, store.ReplaceAll(ctx, recs[1:]))

		got, err := store.LoadAll(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, recs[1:], got)

		require.NoError(t, store.ReplaceAll(ctx, nil))
		got, err = store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("undecodable entry fails the load", func(t *testing.T) {
		store := open(t, t.TempDir()+"/todo.db")
		defer store.Close()

		require.NoError(t, store.ReplaceAll(ctx, Fixture()))
		corrupt(t, store)

		got, err := store.LoadAll(ctx)
		require.Error(t, err)
		assert.True(t, domain.IsDomainError(err, domain.ErrCodeStorage))
		assert.Nil(t, got)
	})

	t.Run("state survives reopen", func(t *testing.T) {
		path := t.TempDir() + "/todo.db"
		store := open(t, path)

		recs := Fixture()
		require.NoError(t, store.ReplaceAll(ctx, recs))
		require.NoError(t, store.SetDirty(ctx, true))
		require.NoError(t, store.Close())

		store = open(t, path)
		defer store.Close()

		got, err := store.LoadAll(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, recs, got)

		dirty, err := store.Dirty(ctx)
		require.NoError(t, err)
		assert.True(t, dirty)

		require.NoError(t, store.SetDirty(ctx, false))
		dirty, err = store.Dirty(ctx)
		require.NoError(t, err)
		assert.False(t, dirty)
	})
}

// Fixture returns two records exercising every optional field.
func Fixture() []domain.Record {
	created := time.Date(2024, 3, 1, 9, 30, 0, 250*int(time.Millisecond), time.UTC)
	deadline := created.Add(48 * time.Hour)
	modified := created.Add(time.Hour)

	return []domain.Record{
		{
			ID:         uuid.MustParse("6f0a6c52-3b0e-4b8e-9d55-1a2b3c4d5e6f"),
			Text:       "Buy milk",
			Importance: domain.ImportanceRegular,
			CreatedAt:  created,
			TextColor:  domain.DefaultTextColor,
		},
		{
			ID:         uuid.MustParse("0b7c9d1e-2f3a-4b5c-8d6e-7f8091a2b3c4"),
			Text:       "File taxes, today",
			Importance: domain.ImportanceImportant,
			Deadline:   &deadline,
			IsDone:     true,
			CreatedAt:  created,
			ModifiedAt: &modified,
			TextColor:  "#FF0000",
		},
	}
}

// AssertSameRecords compares two record sets ignoring order.
func AssertSameRecords(t *testing.T, want, got []domain.Record) {
	t.Helper()
	require.Len(t, got, len(want))

	want = sortedByID(want)
	got = sortedByID(got)
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "record %s: want %+v, got %+v", want[i].ID, want[i], got[i])
	}
}

func sortedByID(records []domain.Record) []domain.Record {
	out := append([]domain.Record(nil), records...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
