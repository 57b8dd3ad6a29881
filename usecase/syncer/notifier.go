package syncer

import "sync"

type eventKind int

const (
	eventList eventKind = iota
	eventBusy
	eventError
)

type event struct {
	kind     eventKind
	snapshot Snapshot
	busy     bool
	message  string
}

// notifier delivers queued events to the observer from one goroutine. Push
// never blocks, so it is safe to call while holding the orchestrator lock.
type notifier struct {
	observer Observer

	mu      sync.Mutex
	queue   []event
	closing bool

	wake chan struct{}
	done chan struct{}
}

func newNotifier(observer Observer) *notifier {
	if observer == nil {
		observer = NopObserver{}
	}
	n := &notifier{
		observer: observer,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) push(e event) {
	n.mu.Lock()
	if n.closing {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, e)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// close delivers what is already queued and stops the goroutine.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closing {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closing = true
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
	<-n.done
}

func (n *notifier) run() {
	for {
		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		closing := n.closing
		n.mu.Unlock()

		for _, e := range batch {
			n.deliver(e)
		}
		if len(batch) > 0 {
			continue
		}
		if closing {
			close(n.done)
			return
		}
		<-n.wake
	}
}

func (n *notifier) deliver(e event) {
	switch e.kind {
	case eventList:
		n.observer.ListChanged(e.snapshot)
	case eventBusy:
		n.observer.BusyChanged(e.busy)
	case eventError:
		n.observer.ErrorOccurred(e.message)
	}
}
