// Package report composes command.Reporter implementations.
//
// Multi fans a snapshot out to several reporters in order. Async decouples
// delivery from the dispatching goroutine with a bounded queue.
package report

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/paphko/habpanelviewer/internal/command"
)

// Multi delivers each snapshot to every reporter in order. Nil reporters are
// skipped.
func Multi(reporters ...command.Reporter) command.Reporter {
	out := make([]command.Reporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return multi(out)
}

type multi []command.Reporter

func (m multi) Notify(snap command.Snapshot) {
	for _, r := range m {
		r.Notify(snap)
	}
}

// Async delivers snapshots to a downstream reporter from a single goroutine.
type Async struct {
	next  command.Reporter
	queue chan command.Snapshot

	mu     sync.RWMutex // Guards closed against sends on a closed queue
	closed bool

	dropped atomic.Int64
	done    chan struct{}
	logger  *log.Logger
}

// NewAsync starts the delivery goroutine. queueSize below 1 is treated as 1.
func NewAsync(next command.Reporter, queueSize int) *Async {
	if queueSize < 1 {
		queueSize = 1
	}
	a := &Async{
		next:   next,
		queue:  make(chan command.Snapshot, queueSize),
		done:   make(chan struct{}),
		logger: log.Default(),
	}
	go a.run()
	return a
}

// SetLogger replaces the logger used for downstream panics.
func (a *Async) SetLogger(l *log.Logger) {
	if l != nil {
		a.logger = l
	}
}

// Notify enqueues snap without blocking. When the queue is full, or after
// Close, the snapshot is dropped and counted.
func (a *Async) Notify(snap command.Snapshot) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- snap:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns how many snapshots were discarded.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting snapshots and waits until the queue is drained.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for snap := range a.queue {
		a.deliver(snap)
	}
}

func (a *Async) deliver(snap command.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Printf("report: reporter panicked on %s %s: %v", snap.Name, snap.State, r)
		}
	}()
	a.next.Notify(snap)
}

var (
	_ command.Reporter = multi(nil)
	_ command.Reporter = (*Async)(nil)
)
