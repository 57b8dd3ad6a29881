package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/repository"
	"github.com/fastygo/todosync/repository/storetest"
)

func TestRecordStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, path string) repository.RecordStore {
		store, err := Open(context.Background(), path)
		require.NoError(t, err)
		return store
	}, func(t *testing.T, store repository.RecordStore) {
		_, err := store.(*recordStore).db.Exec(
			`INSERT INTO todo_list (id, text, created_at, text_color) VALUES ('garbage', 'x', 0, '#000000')`)
		require.NoError(t, err)
	})
}

func TestRecordStore_ClosedStoreReportsStorageError(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, t.TempDir()+"/todo.db")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.LoadAll(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeStorage))

	err = store.Upsert(ctx, storetest.Fixture()[0])
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeStorage))
}
