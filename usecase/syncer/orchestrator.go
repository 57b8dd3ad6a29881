// Package syncer keeps the local todo list converging with the remote list.
//
// Every mutation lands in the local store first. It is then pushed to the
// remote store as a single-record write, retried with backoff while the
// failure is transient. A permanent failure, or a retry budget that runs out,
// sets the persisted dirty flag and falls back to a full resync that uploads
// the whole local list. While the flag is set no single-record writes are
// sent; only a successful resync clears it.
package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/pkg/backoff"
	"github.com/fastygo/todosync/repository"
)

const defaultRequestTimeout = 30 * time.Second

// ErrClosed is returned by operations invoked after Close.
var ErrClosed = domain.NewError(domain.ErrCodeInternal, "sync orchestrator is closed")

// ErrCreatedAtChanged rejects a save that would rewrite a record's creation date.
var ErrCreatedAtChanged = domain.NewError(domain.ErrCodeInvalid, "record creation date cannot change")

// Config tunes the orchestrator. Zero values fall back to defaults.
type Config struct {
	Backoff        backoff.Policy
	RequestTimeout time.Duration
	ShowCompleted  bool
	Scheduler      Scheduler
	Now            func() time.Time
}

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
	opFetch
	opResync
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	case opFetch:
		return "fetch"
	default:
		return "resync"
	}
}

// operation is one counted remote call, including all of its retries.
type operation struct {
	kind       opKind
	record     domain.Record
	id         uuid.UUID
	list       []domain.Record
	generation uint64
	delay      time.Duration
	attempts   int
	timer      Timer
	settled    bool
}

func (op *operation) writesRecord() bool {
	return op.kind == opCreate || op.kind == opUpdate || op.kind == opDelete
}

// Orchestrator owns the in-memory list. All state below mu is only touched
// while holding it; remote calls run on their own goroutines and take the
// lock again to apply their results.
type Orchestrator struct {
	store  repository.RecordStore
	remote repository.RemoteClient
	notify *notifier
	logger *zap.Logger
	cfg    Config

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	items         map[uuid.UUID]domain.Record
	dirty         bool
	counter       inflight
	showCompleted bool
	generation    uint64
	ops           map[*operation]struct{}
	resyncs       int
	closed        bool
}

// New wires an orchestrator. Call Load to read the local list.
func New(store repository.RecordStore, remote repository.RemoteClient, observer Observer, logger *zap.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Backoff = cfg.Backoff.Normalize()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = clockScheduler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	base, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:         store,
		remote:        remote,
		notify:        newNotifier(observer),
		logger:        logger,
		cfg:           cfg,
		base:          base,
		cancel:        cancel,
		items:         make(map[uuid.UUID]domain.Record),
		counter:       newInflight(),
		showCompleted: cfg.ShowCompleted,
		ops:           make(map[*operation]struct{}),
	}
}

// Load reads the local list, then refreshes it from the remote store with a
// full resync when the dirty flag is set or a plain fetch otherwise.
func (o *Orchestrator) Load(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	records, err := o.store.LoadAll(ctx)
	if err != nil {
		o.surfaceLocked(err)
		return err
	}
	dirty, err := o.store.Dirty(ctx)
	if err != nil {
		o.surfaceLocked(err)
		return err
	}

	o.items = index(records)
	o.dirty = dirty
	o.emitListLocked()

	if dirty {
		o.startResyncLocked()
	} else {
		o.startFetchLocked()
	}
	return nil
}

// Save stores record locally and pushes it to the remote store. A record
// whose id is not in the local list is sent as a create.
func (o *Orchestrator) Save(ctx context.Context, record domain.Record) error {
	record = record.Normalized()
	if err := record.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	return o.saveLocked(ctx, record)
}

// ToggleDone flips the done state of a record.
func (o *Orchestrator) ToggleDone(ctx context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	rec, ok := o.items[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	return o.saveLocked(ctx, rec.Toggled(o.cfg.Now()))
}

// Delete removes a record locally and from the remote store.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	if err := o.store.Delete(ctx, id); err != nil {
		o.surfaceLocked(err)
		return err
	}
	delete(o.items, id)
	o.generation++
	o.emitListLocked()

	if o.dirty {
		o.startResyncLocked()
		return nil
	}
	o.startRecordOpLocked(&operation{kind: opDelete, id: id})
	return nil
}

// Resync starts a full resync regardless of the dirty flag.
func (o *Orchestrator) Resync(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.startResyncLocked()
	return nil
}

// ResyncIfDirty starts a full resync when the dirty flag is set and no
// resync is already running. It reports whether one was started.
func (o *Orchestrator) ResyncIfDirty(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || !o.dirty || o.resyncs > 0 {
		return false
	}
	o.startResyncLocked()
	return true
}

// SetShowCompleted changes the display filter.
func (o *Orchestrator) SetShowCompleted(show bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.showCompleted == show {
		return
	}
	o.showCompleted = show
	o.emitListLocked()
}

// Snapshot returns the current display projection.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return project(o.items, o.showCompleted)
}

// Get returns the record with id from the local list.
func (o *Orchestrator) Get(id uuid.UUID) (domain.Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.items[id]
	return rec, ok
}

// Busy reports whether any remote operation is outstanding.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counter.busy()
}

// Dirty reports whether local and remote lists are known to disagree.
func (o *Orchestrator) Dirty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dirty
}

// WaitIdle blocks until no remote operation is outstanding. Pending retries
// count as outstanding.
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	o.mu.Lock()
	idle := o.counter.idle
	o.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight requests and pending retries, then flushes the
// notifications already queued. An abandoned single-record write marks the
// list dirty so the next Load resyncs it.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.cancel()

	abandoned := false
	for op := range o.ops {
		if op.timer != nil {
			op.timer.Stop()
		}
		if op.writesRecord() {
			abandoned = true
		}
		o.finishLocked(op)
	}

	var err error
	if abandoned && !o.dirty {
		o.dirty = true
		err = o.store.SetDirty(ctx, true)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	o.notify.close()
	return err
}

func (o *Orchestrator) saveLocked(ctx context.Context, record domain.Record) error {
	existing, known := o.items[record.ID]
	if known && !existing.CreatedAt.Equal(record.CreatedAt) {
		return ErrCreatedAtChanged
	}
	if err := o.store.Upsert(ctx, record); err != nil {
		o.surfaceLocked(err)
		return err
	}
	o.items[record.ID] = record
	o.generation++
	o.emitListLocked()

	switch {
	case o.dirty:
		o.startResyncLocked()
	case known:
		o.startRecordOpLocked(&operation{kind: opUpdate, record: record, id: record.ID})
	default:
		o.startRecordOpLocked(&operation{kind: opCreate, record: record, id: record.ID})
	}
	return nil
}

func (o *Orchestrator) beginLocked(op *operation) {
	o.ops[op] = struct{}{}
	if op.kind == opResync {
		o.resyncs++
	}
	if o.counter.inc() {
		o.notify.push(event{kind: eventBusy, busy: true})
	}
}

// finishLocked does the counter bookkeeping of op exactly once.
func (o *Orchestrator) finishLocked(op *operation) {
	if op.settled {
		return
	}
	op.settled = true
	delete(o.ops, op)
	if op.kind == opResync {
		o.resyncs--
	}
	if o.counter.dec() {
		o.notify.push(event{kind: eventBusy, busy: false})
	}
}

func (o *Orchestrator) launchLocked(f func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		f()
	}()
}

func (o *Orchestrator) startRecordOpLocked(op *operation) {
	op.delay = o.cfg.Backoff.First()
	o.beginLocked(op)
	o.launchLocked(func() { o.attempt(op) })
}

func (o *Orchestrator) attempt(op *operation) {
	ctx, cancel := context.WithTimeout(o.base, o.cfg.RequestTimeout)
	err := o.callRemote(ctx, op)
	cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	if op.settled {
		return
	}
	op.attempts++

	switch {
	case err == nil:
		o.logger.Debug("remote write applied",
			zap.Stringer("op", op.kind),
			zap.String("record_id", op.id.String()),
			zap.Int("attempts", op.attempts))
		o.finishLocked(op)

	case isTransient(err) && !o.cfg.Backoff.Exhausted(op.delay):
		delay := op.delay
		op.delay = o.cfg.Backoff.Next(delay)
		o.logger.Debug("remote write failed, retrying",
			zap.Stringer("op", op.kind),
			zap.String("record_id", op.id.String()),
			zap.Duration("delay", delay),
			zap.Error(err))
		op.timer = o.cfg.Scheduler.AfterFunc(delay, func() { o.retry(op) })

	default:
		o.logger.Warn("remote write failed, falling back to full resync",
			zap.Stringer("op", op.kind),
			zap.String("record_id", op.id.String()),
			zap.Int("attempts", op.attempts),
			zap.Error(err))
		o.markDirtyLocked()
		o.startResyncLocked()
		o.finishLocked(op)
	}
}

func (o *Orchestrator) retry(op *operation) {
	o.mu.Lock()
	if op.settled {
		o.mu.Unlock()
		return
	}
	op.timer = nil
	if o.dirty {
		// The resync that set the flag carries this record as well.
		o.finishLocked(op)
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	defer o.wg.Done()
	o.attempt(op)
}

func (o *Orchestrator) callRemote(ctx context.Context, op *operation) error {
	var err error
	switch op.kind {
	case opCreate:
		_, err = o.remote.Create(ctx, op.record)
	case opUpdate:
		_, err = o.remote.Update(ctx, op.record)
	case opDelete:
		_, err = o.remote.Delete(ctx, op.id)
	}
	return err
}

func (o *Orchestrator) startResyncLocked() {
	op := &operation{kind: opResync, list: o.listLocked(), generation: o.generation}
	o.beginLocked(op)
	o.launchLocked(func() { o.runResync(op) })
}

func (o *Orchestrator) runResync(op *operation) {
	ctx, cancel := context.WithTimeout(o.base, o.cfg.RequestTimeout)
	merged, err := o.remote.SyncList(ctx, op.list)
	cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	if op.settled {
		return
	}
	defer o.finishLocked(op)

	if err != nil {
		o.surfaceLocked(domain.WrapError(domain.ErrCodeResync, "full resync failed", err))
		return
	}
	if op.generation != o.generation {
		o.logger.Debug("discarding stale resync result")
		if !o.dirty {
			o.startResyncLocked()
		}
		return
	}
	if err := o.replaceLocked(merged); err != nil {
		o.surfaceLocked(err)
		return
	}
	if err := o.store.SetDirty(o.base, false); err != nil {
		o.surfaceLocked(err)
		return
	}
	o.dirty = false
	o.logger.Info("full resync completed", zap.Int("records", len(merged)))
}

func (o *Orchestrator) startFetchLocked() {
	op := &operation{kind: opFetch, generation: o.generation}
	o.beginLocked(op)
	o.launchLocked(func() { o.runFetch(op) })
}

func (o *Orchestrator) runFetch(op *operation) {
	ctx, cancel := context.WithTimeout(o.base, o.cfg.RequestTimeout)
	records, err := o.remote.FetchList(ctx)
	cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	if op.settled {
		return
	}
	defer o.finishLocked(op)

	if err != nil {
		o.surfaceLocked(domain.WrapError(remoteCode(err), "could not refresh list from server", err))
		return
	}
	if op.generation != o.generation {
		// A local edit happened meanwhile; upload it instead of overwriting it.
		o.logger.Debug("fetched list is stale, resyncing")
		o.markDirtyLocked()
		o.startResyncLocked()
		return
	}
	if err := o.replaceLocked(records); err != nil {
		o.surfaceLocked(err)
	}
}

func (o *Orchestrator) replaceLocked(records []domain.Record) error {
	normalized := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		normalized = append(normalized, rec.Normalized())
	}
	if err := o.store.ReplaceAll(o.base, normalized); err != nil {
		return err
	}
	o.items = index(normalized)
	o.emitListLocked()
	return nil
}

func (o *Orchestrator) markDirtyLocked() {
	o.dirty = true
	if err := o.store.SetDirty(o.base, true); err != nil {
		o.surfaceLocked(err)
	}
}

func (o *Orchestrator) listLocked() []domain.Record {
	list := make([]domain.Record, 0, len(o.items))
	for _, rec := range o.items {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID.String() < list[j].ID.String() })
	return list
}

func (o *Orchestrator) emitListLocked() {
	o.notify.push(event{kind: eventList, snapshot: project(o.items, o.showCompleted)})
}

func (o *Orchestrator) surfaceLocked(err error) {
	o.logger.Error("sync error", zap.Error(err))
	o.notify.push(event{kind: eventError, message: err.Error()})
}

func isTransient(err error) bool {
	return domain.IsDomainError(err, domain.ErrCodeTransient) || errors.Is(err, context.DeadlineExceeded)
}

func remoteCode(err error) domain.ErrorCode {
	if isTransient(err) {
		return domain.ErrCodeTransient
	}
	return domain.ErrCodePermanent
}

func index(records []domain.Record) map[uuid.UUID]domain.Record {
	items := make(map[uuid.UUID]domain.Record, len(records))
	for _, rec := range records {
		items[rec.ID] = rec.Normalized()
	}
	return items
}
