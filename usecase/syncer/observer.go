package syncer

import (
	"sort"

	"github.com/google/uuid"

	"github.com/fastygo/todosync/domain"
)

// Observer receives the notifications produced by the orchestrator. Calls
// arrive on a single goroutine in the order the state changed, so an
// observer may call back into the orchestrator.
type Observer interface {
	ListChanged(Snapshot)
	BusyChanged(busy bool)
	ErrorOccurred(message string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) ListChanged(Snapshot) {}
func (NopObserver) BusyChanged(bool)     {}
func (NopObserver) ErrorOccurred(string) {}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnList  func(Snapshot)
	OnBusy  func(bool)
	OnError func(string)
}

func (f ObserverFuncs) ListChanged(s Snapshot) {
	if f.OnList != nil {
		f.OnList(s)
	}
}

func (f ObserverFuncs) BusyChanged(busy bool) {
	if f.OnBusy != nil {
		f.OnBusy(busy)
	}
}

func (f ObserverFuncs) ErrorOccurred(message string) {
	if f.OnError != nil {
		f.OnError(message)
	}
}

// Snapshot is an immutable display projection of the local list.
type Snapshot struct {
	Items          []domain.Record
	CompletedCount int
	ShowCompleted  bool
}

// project sorts by creation date, newest first, and hides completed records
// unless showCompleted is set.
func project(items map[uuid.UUID]domain.Record, showCompleted bool) Snapshot {
	snap := Snapshot{ShowCompleted: showCompleted, Items: make([]domain.Record, 0, len(items))}
	for _, rec := range items {
		if rec.IsDone {
			snap.CompletedCount++
			if !showCompleted {
				continue
			}
		}
		snap.Items = append(snap.Items, rec.Normalized())
	}
	sortNewestFirst(snap.Items)
	return snap
}

func sortNewestFirst(records []domain.Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
