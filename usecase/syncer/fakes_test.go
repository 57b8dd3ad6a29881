package syncer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/todosync/domain"
)

type fakeStore struct {
	mu         sync.Mutex
	records    map[uuid.UUID]domain.Record
	dirty      bool
	failUpsert error
	failDelete error
}

func newFakeStore(records ...domain.Record) *fakeStore {
	s := &fakeStore{records: make(map[uuid.UUID]domain.Record)}
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	return s
}

func (s *fakeStore) LoadAll(context.Context) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) ReplaceAll(_ context.Context, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[uuid.UUID]domain.Record, len(records))
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, record domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return domain.StorageError("upsert", s.failUpsert)
	}
	s.records[record.ID] = record
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return domain.StorageError("delete", s.failDelete)
	}
	delete(s.records, id)
	return nil
}

func (s *fakeStore) Dirty(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty, nil
}

func (s *fakeStore) SetDirty(_ context.Context, dirty bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = dirty
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) get(id uuid.UUID) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *fakeStore) isDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

const (
	methodFetch  = "fetch"
	methodSync   = "sync"
	methodCreate = "create"
	methodUpdate = "update"
	methodDelete = "delete"
)

// fakeRemote behaves like a server that accepts whatever list it is sent.
type fakeRemote struct {
	mu       sync.Mutex
	calls    map[string]int
	synced   [][]domain.Record
	list     []domain.Record
	failures map[string][]error
	always   map[string]error
	block    map[string]chan struct{}
}

func newFakeRemote(list ...domain.Record) *fakeRemote {
	return &fakeRemote{
		calls:    make(map[string]int),
		list:     list,
		failures: make(map[string][]error),
		always:   make(map[string]error),
		block:    make(map[string]chan struct{}),
	}
}

// fail queues errors returned by the next calls of method.
func (r *fakeRemote) fail(method string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[method] = append(r.failures[method], errs...)
}

func (r *fakeRemote) failAlways(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.always[method] = err
}

// hold makes calls of method wait until the returned channel is closed.
func (r *fakeRemote) hold(method string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate := make(chan struct{})
	r.block[method] = gate
	return gate
}

func (r *fakeRemote) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]int)
	r.synced = nil
	r.failures = make(map[string][]error)
	r.always = make(map[string]error)
}

func (r *fakeRemote) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *fakeRemote) syncedLists() [][]domain.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.Record(nil), r.synced...)
}

func (r *fakeRemote) enter(ctx context.Context, method string) error {
	r.mu.Lock()
	r.calls[method]++
	gate := r.block[method]
	err := r.always[method]
	if queue := r.failures[method]; len(queue) > 0 {
		err = queue[0]
		r.failures[method] = queue[1:]
	}
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (r *fakeRemote) FetchList(ctx context.Context) ([]domain.Record, error) {
	if err := r.enter(ctx, methodFetch); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Record(nil), r.list...), nil
}

func (r *fakeRemote) SyncList(ctx context.Context, records []domain.Record) ([]domain.Record, error) {
	r.mu.Lock()
	r.synced = append(r.synced, append([]domain.Record(nil), records...))
	r.mu.Unlock()

	if err := r.enter(ctx, methodSync); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append([]domain.Record(nil), records...)
	return append([]domain.Record(nil), r.list...), nil
}

func (r *fakeRemote) Create(ctx context.Context, record domain.Record) (*domain.Record, error) {
	if err := r.enter(ctx, methodCreate); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *fakeRemote) Update(ctx context.Context, record domain.Record) (*domain.Record, error) {
	if err := r.enter(ctx, methodUpdate); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *fakeRemote) Delete(ctx context.Context, _ uuid.UUID) (*domain.Record, error) {
	return nil, r.enter(ctx, methodDelete)
}

type fakeTimer struct {
	sched   *fakeScheduler
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler only runs a delayed call when the test fires it.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// next waits for exactly one pending timer and returns it.
func (s *fakeScheduler) next(t *testing.T) *fakeTimer {
	t.Helper()
	require.Eventually(t, func() bool { return len(s.pending()) == 1 }, time.Second, time.Millisecond)
	return s.pending()[0]
}

// fire runs the delayed call on the calling goroutine.
func (t *fakeTimer) fire() {
	t.sched.mu.Lock()
	if t.stopped || t.fired {
		t.sched.mu.Unlock()
		return
	}
	t.fired = true
	t.sched.mu.Unlock()
	t.f()
}

// recorder keeps every notification as a short string.
type recorder struct {
	mu     sync.Mutex
	events []string
	last   Snapshot
}

func (r *recorder) ListChanged(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = s
	r.events = append(r.events, fmt.Sprintf("list:%d", len(s.Items)))
}

func (r *recorder) BusyChanged(busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("busy:%t", busy))
}

func (r *recorder) ErrorOccurred(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "error:"+message)
}

func (r *recorder) busyEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e == "busy:true" || e == "busy:false" {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if len(e) > 6 && e[:6] == "error:" {
			out = append(out, e[6:])
		}
	}
	return out
}

func (r *recorder) lastSnapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
