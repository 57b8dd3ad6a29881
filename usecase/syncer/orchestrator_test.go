package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/pkg/backoff"
)

var (
	errOffline  = domain.TransientError("server unavailable", nil)
	errRejected = domain.PermanentError("request rejected", nil)
)

type harness struct {
	o      *Orchestrator
	store  *fakeStore
	remote *fakeRemote
	sched  *fakeScheduler
	obs    *recorder
}

func newHarness(t *testing.T, store *fakeStore, remote *fakeRemote, tweak ...func(*Config)) *harness {
	t.Helper()
	h := &harness{store: store, remote: remote, sched: &fakeScheduler{}, obs: &recorder{}}
	cfg := Config{
		Backoff: backoff.Policy{
			Min:    2 * time.Second,
			Max:    120 * time.Second,
			Factor: 1.5,
			Unit:   time.Second,
			Rand:   func() float64 { return 0 },
		},
		RequestTimeout: time.Second,
		Scheduler:      h.sched,
	}
	for _, f := range tweak {
		f(&cfg)
	}
	h.o = New(store, remote, h.obs, nil, cfg)
	t.Cleanup(func() { _ = h.o.Close(context.Background()) })
	return h
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.o.WaitIdle(ctx))
}

func record(text string, created time.Time) domain.Record {
	rec := domain.NewRecord(text, domain.ImportanceRegular, nil, "")
	rec.CreatedAt = domain.NormalizeTime(created)
	return rec
}

func TestSave_NewRecordIsCreatedThenUpdated(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())
	ctx := context.Background()

	rec := domain.NewRecord("Buy milk", domain.ImportanceRegular, nil, "")
	require.NoError(t, h.o.Save(ctx, rec))
	h.waitIdle(t)

	edited := rec.Edited("Buy oat milk", domain.ImportanceImportant, nil, "", time.Now())
	require.NoError(t, h.o.Save(ctx, edited))
	h.waitIdle(t)

	assert.Equal(t, 1, h.remote.count(methodCreate))
	assert.Equal(t, 1, h.remote.count(methodUpdate))
	assert.Zero(t, h.remote.count(methodSync))
	assert.False(t, h.o.Dirty())

	got, ok := h.o.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "Buy oat milk", got.Text)
}

func TestSave_LocalStoreUpdatedBeforeRemote(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())
	gate := h.remote.hold(methodCreate)
	defer close(gate)

	rec := domain.NewRecord("Buy milk", domain.ImportanceRegular, nil, "")
	require.NoError(t, h.o.Save(context.Background(), rec))

	stored, ok := h.store.get(rec.ID)
	require.True(t, ok, "local store must hold the record when Save returns")
	assert.True(t, rec.Equal(stored))
	assert.True(t, h.o.Busy())
}

func TestSave_OfflineCreateExhaustsRetriesThenResyncs(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())
	h.remote.failAlways(methodCreate, errOffline)
	h.remote.failAlways(methodSync, errOffline)

	rec := domain.NewRecord("Buy milk", domain.ImportanceRegular, nil, "")
	require.NoError(t, h.o.Save(context.Background(), rec))

	delays := []time.Duration{2, 3, 4, 6, 9, 13, 19, 28, 42, 63, 94}
	for i, want := range delays {
		timer := h.sched.next(t)
		require.Equal(t, want*time.Second, timer.delay, "retry %d", i+1)
		assert.Zero(t, h.remote.count(methodSync), "no resync while retries remain")
		timer.fire()
	}

	require.Eventually(t, func() bool { return h.remote.count(methodSync) == 1 }, time.Second, time.Millisecond)
	h.waitIdle(t)

	assert.Equal(t, len(delays)+1, h.remote.count(methodCreate))
	assert.Empty(t, h.sched.pending())
	assert.True(t, h.o.Dirty())
	assert.True(t, h.store.isDirty())

	synced := h.remote.syncedLists()
	require.Len(t, synced, 1)
	require.Len(t, synced[0], 1)
	assert.Equal(t, rec.ID, synced[0][0].ID)

	require.Eventually(t, func() bool { return len(h.obs.errors()) == 1 }, time.Second, time.Millisecond)
}

func TestToggleDone_WhileDirtyOnlyResyncs(t *testing.T) {
	rec := record("Call Bob", time.Now())
	store := newFakeStore(rec)
	store.dirty = true
	h := newHarness(t, store, newFakeRemote())
	ctx := context.Background()

	h.remote.failAlways(methodSync, errOffline)
	require.NoError(t, h.o.Load(ctx))
	h.waitIdle(t)
	require.True(t, h.o.Dirty())

	h.remote.reset()
	require.NoError(t, h.o.ToggleDone(ctx, rec.ID))
	h.waitIdle(t)

	assert.Zero(t, h.remote.count(methodUpdate))
	assert.Zero(t, h.remote.count(methodCreate))
	assert.Equal(t, 1, h.remote.count(methodSync))

	synced := h.remote.syncedLists()
	require.Len(t, synced, 1)
	require.Len(t, synced[0], 1)
	assert.True(t, synced[0][0].IsDone)

	assert.False(t, h.o.Dirty(), "successful resync clears the flag")
	assert.False(t, store.isDirty())
}

func TestSave_TransientFailureRecoversWithoutDirty(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())
	h.remote.fail(methodCreate, errOffline, errOffline)

	rec := domain.NewRecord("Buy milk", domain.ImportanceRegular, nil, "")
	require.NoError(t, h.o.Save(context.Background(), rec))

	h.sched.next(t).fire()
	h.sched.next(t).fire()
	h.waitIdle(t)

	assert.Equal(t, 3, h.remote.count(methodCreate), "retried as a create")
	assert.Zero(t, h.remote.count(methodUpdate))
	assert.Zero(t, h.remote.count(methodSync))
	assert.False(t, h.o.Dirty())
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"busy:true", "busy:false"}, h.obs.busyEvents())
	}, time.Second, time.Millisecond)
	assert.Empty(t, h.obs.errors(), "recovered failures are not surfaced")
}

func TestSave_PermanentFailureGoesStraightToResync(t *testing.T) {
	rec := record("Call Bob", time.Now())
	h := newHarness(t, newFakeStore(rec), newFakeRemote(rec))
	ctx := context.Background()
	require.NoError(t, h.o.Load(ctx))
	h.waitIdle(t)

	h.remote.fail(methodUpdate, errRejected)
	require.NoError(t, h.o.Save(ctx, rec.Edited("Call Bob today", domain.ImportanceImportant, nil, "", time.Now())))
	h.waitIdle(t)

	assert.Empty(t, h.sched.pending(), "permanent failures are not retried")
	assert.Equal(t, 1, h.remote.count(methodUpdate))
	assert.Equal(t, 1, h.remote.count(methodSync))
	assert.False(t, h.o.Dirty())
	assert.Empty(t, h.obs.errors())
}

func TestResync_FailureSurfacesErrorAndKeepsDirty(t *testing.T) {
	store := newFakeStore(record("Call Bob", time.Now()))
	store.dirty = true
	h := newHarness(t, store, newFakeRemote())
	h.remote.failAlways(methodSync, errOffline)

	require.NoError(t, h.o.Load(context.Background()))
	h.waitIdle(t)

	assert.True(t, h.o.Dirty())
	assert.True(t, store.isDirty())
	assert.Empty(t, h.sched.pending(), "a failed resync is not retried automatically")
	require.Eventually(t, func() bool { return len(h.obs.errors()) == 1 }, time.Second, time.Millisecond)
	assert.Contains(t, h.obs.errors()[0], "full resync failed")
}

func TestResync_IsIdempotent(t *testing.T) {
	now := time.Now()
	a, b := record("a", now), record("b", now.Add(time.Second))
	h := newHarness(t, newFakeStore(a, b), newFakeRemote(a, b))
	ctx := context.Background()
	require.NoError(t, h.o.Load(ctx))
	h.waitIdle(t)

	require.NoError(t, h.o.Resync(ctx))
	h.waitIdle(t)
	first := h.o.Snapshot()

	require.NoError(t, h.o.Resync(ctx))
	h.waitIdle(t)
	second := h.o.Snapshot()

	require.Len(t, first.Items, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, h.remote.count(methodSync))
}

func TestResyncIfDirty(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())
	ctx := context.Background()

	assert.False(t, h.o.ResyncIfDirty(ctx))

	h.remote.fail(methodCreate, errRejected)
	h.remote.failAlways(methodSync, errOffline)
	require.NoError(t, h.o.Save(ctx, domain.NewRecord("x", "", nil, "")))
	require.Eventually(t, func() bool { return h.remote.count(methodSync) == 1 }, time.Second, time.Millisecond)
	h.waitIdle(t)
	require.True(t, h.o.Dirty())

	h.remote.reset()
	assert.True(t, h.o.ResyncIfDirty(ctx))
	h.waitIdle(t)
	assert.False(t, h.o.Dirty())
	assert.False(t, h.o.ResyncIfDirty(ctx))
}

func TestBusy_FiresOnlyOnTransitions(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())
	gate := h.remote.hold(methodCreate)
	ctx := context.Background()

	require.NoError(t, h.o.Save(ctx, domain.NewRecord("a", "", nil, "")))
	require.NoError(t, h.o.Save(ctx, domain.NewRecord("b", "", nil, "")))
	require.NoError(t, h.o.Save(ctx, domain.NewRecord("c", "", nil, "")))
	assert.True(t, h.o.Busy())

	close(gate)
	h.waitIdle(t)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"busy:true", "busy:false"}, h.obs.busyEvents())
	}, time.Second, time.Millisecond)
	assert.False(t, h.o.Busy())
}

func TestClose_CancelsPendingRetry(t *testing.T) {
	store := newFakeStore()
	h := newHarness(t, store, newFakeRemote())
	h.remote.failAlways(methodCreate, errOffline)

	require.NoError(t, h.o.Save(context.Background(), domain.NewRecord("a", "", nil, "")))
	timer := h.sched.next(t)

	require.NoError(t, h.o.Close(context.Background()))

	assert.True(t, timer.stopped)
	assert.False(t, h.o.Busy())
	assert.True(t, store.isDirty(), "abandoned write is resynced on next launch")
	assert.Equal(t, []string{"busy:true", "busy:false"}, h.obs.busyEvents())

	timer.f()
	assert.Equal(t, 1, h.remote.count(methodCreate))
	assert.False(t, h.o.Busy())
	assert.ErrorIs(t, h.o.Save(context.Background(), domain.NewRecord("b", "", nil, "")), ErrClosed)
}

func TestClose_CancelsInFlightRequest(t *testing.T) {
	store := newFakeStore()
	h := newHarness(t, store, newFakeRemote())
	h.remote.hold(methodCreate)

	require.NoError(t, h.o.Save(context.Background(), domain.NewRecord("a", "", nil, "")))
	require.Eventually(t, func() bool { return h.remote.count(methodCreate) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.o.Close(context.Background()))

	assert.False(t, h.o.Busy())
	assert.True(t, store.isDirty())
	assert.Empty(t, h.sched.pending())
	assert.Equal(t, []string{"busy:true", "busy:false"}, h.obs.busyEvents())
	assert.Empty(t, h.obs.errors())
}

func TestSave_TimeoutIsTransient(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote(), func(cfg *Config) {
		cfg.RequestTimeout = 20 * time.Millisecond
	})
	h.remote.hold(methodCreate)

	require.NoError(t, h.o.Save(context.Background(), domain.NewRecord("a", "", nil, "")))

	timer := h.sched.next(t)
	assert.Equal(t, 2*time.Second, timer.delay)
	assert.Zero(t, h.remote.count(methodSync))
	assert.False(t, h.o.Dirty())
}

func TestRetry_AbandonedOnceDirty(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())
	h.remote.fail(methodCreate, errOffline, errRejected)
	h.remote.failAlways(methodSync, errOffline)
	ctx := context.Background()

	require.NoError(t, h.o.Save(ctx, domain.NewRecord("a", "", nil, "")))
	timer := h.sched.next(t)

	require.NoError(t, h.o.Save(ctx, domain.NewRecord("b", "", nil, "")))
	require.Eventually(t, func() bool { return h.remote.count(methodSync) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return h.o.Dirty() }, time.Second, time.Millisecond)

	timer.fire()
	h.waitIdle(t)

	assert.Equal(t, 2, h.remote.count(methodCreate), "no single-record write while dirty")
	synced := h.remote.syncedLists()
	require.Len(t, synced, 1)
	assert.Len(t, synced[0], 2)
}

func TestSave_StorageFailureIsSurfacedAndNotPushed(t *testing.T) {
	store := newFakeStore()
	store.failUpsert = errors.New("disk full")
	h := newHarness(t, store, newFakeRemote())

	rec := domain.NewRecord("a", "", nil, "")
	err := h.o.Save(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeStorage))

	_, ok := h.o.Get(rec.ID)
	assert.False(t, ok)
	assert.False(t, h.o.Busy())
	assert.Zero(t, h.remote.count(methodCreate))
	require.Eventually(t, func() bool { return len(h.obs.errors()) == 1 }, time.Second, time.Millisecond)
}

func TestSave_RejectsInvalidRecord(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())

	err := h.o.Save(context.Background(), domain.Record{ID: uuid.New(), CreatedAt: time.Now()})
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
	assert.False(t, h.o.Busy())
}

func TestSave_KeepsCreationDate(t *testing.T) {
	rec := record("Buy milk", time.Now().Add(-time.Hour))
	store := newFakeStore(rec)
	h := newHarness(t, store, newFakeRemote(rec))
	require.NoError(t, h.o.Load(context.Background()))
	h.waitIdle(t)

	moved := rec.Edited("Buy oat milk", domain.ImportanceRegular, nil, "", time.Now())
	moved.CreatedAt = rec.CreatedAt.Add(30 * time.Minute)
	err := h.o.Save(context.Background(), moved)
	require.ErrorIs(t, err, ErrCreatedAtChanged)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	got, ok := h.o.Get(rec.ID)
	require.True(t, ok)
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
	assert.Equal(t, "Buy milk", got.Text)
	stored, ok := store.get(rec.ID)
	require.True(t, ok)
	assert.True(t, stored.CreatedAt.Equal(rec.CreatedAt))
	assert.Zero(t, h.remote.count(methodUpdate))
}

func TestToggleDone_UnknownRecord(t *testing.T) {
	h := newHarness(t, newFakeStore(), newFakeRemote())
	assert.ErrorIs(t, h.o.ToggleDone(context.Background(), uuid.New()), domain.ErrRecordNotFound)
}

func TestDelete_PushesRemoteDelete(t *testing.T) {
	rec := record("a", time.Now())
	store := newFakeStore(rec)
	h := newHarness(t, store, newFakeRemote(rec))
	ctx := context.Background()
	require.NoError(t, h.o.Load(ctx))
	h.waitIdle(t)

	require.NoError(t, h.o.Delete(ctx, rec.ID))
	_, stored := store.get(rec.ID)
	assert.False(t, stored)
	h.waitIdle(t)

	assert.Equal(t, 1, h.remote.count(methodDelete))
	assert.Empty(t, h.o.Snapshot().Items)
}

func TestDelete_WhileDirtyResyncs(t *testing.T) {
	rec := record("a", time.Now())
	store := newFakeStore(rec)
	store.dirty = true
	h := newHarness(t, store, newFakeRemote())
	ctx := context.Background()
	h.remote.failAlways(methodSync, errOffline)
	require.NoError(t, h.o.Load(ctx))
	h.waitIdle(t)

	h.remote.reset()
	require.NoError(t, h.o.Delete(ctx, rec.ID))
	h.waitIdle(t)

	assert.Zero(t, h.remote.count(methodDelete))
	assert.Equal(t, 1, h.remote.count(methodSync))
	assert.Empty(t, h.remote.syncedLists()[0])
}

func TestLoad_FetchReplacesLocalList(t *testing.T) {
	local := record("stale", time.Now())
	server := record("fresh", time.Now())
	store := newFakeStore(local)
	h := newHarness(t, store, newFakeRemote(server))

	require.NoError(t, h.o.Load(context.Background()))
	h.waitIdle(t)

	_, ok := h.o.Get(local.ID)
	assert.False(t, ok)
	_, ok = h.o.Get(server.ID)
	assert.True(t, ok)
	_, ok = store.get(server.ID)
	assert.True(t, ok)
	assert.Zero(t, h.remote.count(methodSync))
}

func TestLoad_FetchFailureIsSurfacedWithoutDirty(t *testing.T) {
	rec := record("a", time.Now())
	h := newHarness(t, newFakeStore(rec), newFakeRemote())
	h.remote.failAlways(methodFetch, errOffline)

	require.NoError(t, h.o.Load(context.Background()))
	h.waitIdle(t)

	_, ok := h.o.Get(rec.ID)
	assert.True(t, ok, "local list stays usable offline")
	assert.False(t, h.o.Dirty())
	require.Eventually(t, func() bool { return len(h.obs.errors()) == 1 }, time.Second, time.Millisecond)
}

func TestLoad_StaleFetchTriggersResync(t *testing.T) {
	server := record("server", time.Now())
	h := newHarness(t, newFakeStore(), newFakeRemote(server))
	gate := h.remote.hold(methodFetch)
	ctx := context.Background()

	require.NoError(t, h.o.Load(ctx))
	require.Eventually(t, func() bool { return h.remote.count(methodFetch) == 1 }, time.Second, time.Millisecond)

	local := domain.NewRecord("made during fetch", "", nil, "")
	require.NoError(t, h.o.Save(ctx, local))
	close(gate)
	h.waitIdle(t)

	assert.Equal(t, 1, h.remote.count(methodSync))
	_, ok := h.o.Get(local.ID)
	assert.True(t, ok, "the local edit survives the fetch")
	assert.False(t, h.o.Dirty())
}

func TestSnapshot_SortedAndFiltered(t *testing.T) {
	now := time.Now()
	oldest := record("oldest", now.Add(-2*time.Hour))
	middle := record("middle", now.Add(-time.Hour)).Toggled(now)
	newest := record("newest", now)
	h := newHarness(t, newFakeStore(oldest, middle, newest), newFakeRemote(oldest, middle, newest))

	require.NoError(t, h.o.Load(context.Background()))
	h.waitIdle(t)

	snap := h.o.Snapshot()
	assert.False(t, snap.ShowCompleted)
	assert.Equal(t, 1, snap.CompletedCount)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "newest", snap.Items[0].Text)
	assert.Equal(t, "oldest", snap.Items[1].Text)

	h.o.SetShowCompleted(true)
	snap = h.o.Snapshot()
	require.Len(t, snap.Items, 3)
	assert.Equal(t, []string{"newest", "middle", "oldest"},
		[]string{snap.Items[0].Text, snap.Items[1].Text, snap.Items[2].Text})

	require.Eventually(t, func() bool { return len(h.obs.lastSnapshot().Items) == 3 }, time.Second, time.Millisecond)
}
