package presenter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/sensorbridge/internal/device"
)

// DefaultQueueSize bounds pending notifications when none is configured.
const DefaultQueueSize = 256

// Kind names a lifecycle change. The values double as WebSocket message types.
type Kind string

const (
	KindRegistered   Kind = "entry.registered"
	KindUpdated      Kind = "entry.updated"
	KindUnregistered Kind = "entry.unregistered"
)

// Notification is one lifecycle change with a copy of the entry.
type Notification struct {
	Kind  Kind
	Entry device.Entry
	At    time.Time
}

// Sink delivers notifications to one consumer.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Fanout queues registry notifications and delivers them to every sink
// from a single worker, preserving order.
//
// Pending updates for the same entry collapse into one carrying the latest
// snapshot. Registrations and unregistrations are never dropped; only an
// update for an entry with nothing pending is refused once the queue holds
// queueSize notifications.
type Fanout struct {
	sinks []Sink
	limit int
	now   func() time.Time

	mu      sync.Mutex
	pending []Notification
	latest  map[string]int // entry ID -> index into pending
	wake    chan struct{}

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// NewFanout creates a fanout. A non-positive queueSize means DefaultQueueSize.
func NewFanout(queueSize int, sinks ...Sink) *Fanout {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Fanout{
		sinks:  sinks,
		limit:  queueSize,
		now:    time.Now,
		latest: make(map[string]int),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for delivery failures.
func (f *Fanout) SetLogger(logger Logger) {
	f.logger = logger
}

// Sinks returns the names of the configured sinks.
func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Pending returns the number of notifications waiting for the worker.
func (f *Fanout) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// EntryRegistered implements device.Presenter.
func (f *Fanout) EntryRegistered(e device.Entry) { f.enqueue(KindRegistered, e) }

// EntryUpdated implements device.Presenter.
func (f *Fanout) EntryUpdated(e device.Entry) { f.enqueue(KindUpdated, e) }

// EntryUnregistered implements device.Presenter.
func (f *Fanout) EntryUnregistered(e device.Entry) { f.enqueue(KindUnregistered, e) }

func (f *Fanout) enqueue(kind Kind, e device.Entry) {
	if len(f.sinks) == 0 {
		return
	}
	n := Notification{Kind: kind, Entry: e, At: f.now()}

	f.mu.Lock()
	if kind == KindUpdated {
		// A pending registration or update already tells sinks about this
		// entry; refresh its snapshot in place.
		if i, ok := f.latest[e.ID]; ok && f.pending[i].Kind != KindUnregistered {
			f.pending[i].Entry = e
			f.pending[i].At = n.At
			f.mu.Unlock()
			notifications.WithLabelValues("coalesced").Inc()
			return
		}
		if len(f.pending) >= f.limit {
			f.mu.Unlock()
			notifications.WithLabelValues("dropped").Inc()
			f.logger.Warn("presenter queue full, update dropped", "entry_id", e.ID)
			return
		}
	}
	f.pending = append(f.pending, n)
	f.latest[e.ID] = len(f.pending) - 1
	f.mu.Unlock()

	notifications.WithLabelValues("queued").Inc()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// take removes and returns everything pending.
func (f *Fanout) take() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.pending
	f.pending = nil
	clear(f.latest)
	return batch
}

// Start runs the delivery worker until ctx is cancelled or Stop is called.
func (f *Fanout) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop delivers what is already queued and waits for the worker.
// Safe to call multiple times.
func (f *Fanout) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
	})
}

func (f *Fanout) run(ctx context.Context) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			f.drain(context.WithoutCancel(ctx))
			return
		case <-f.done:
			f.drain(ctx)
			return
		case <-f.wake:
			for _, n := range f.take() {
				f.deliver(ctx, n)
			}
		}
	}
}

func (f *Fanout) drain(ctx context.Context) {
	for {
		batch := f.take()
		if len(batch) == 0 {
			return
		}
		for _, n := range batch {
			f.deliver(ctx, n)
		}
	}
}

// deliver hands n to every sink. One sink failing or panicking does not
// affect the others.
func (f *Fanout) deliver(ctx context.Context, n Notification) {
	for _, s := range f.sinks {
		if err := f.safeDeliver(ctx, s, n); err != nil {
			sinkFailures.WithLabelValues(s.Name()).Inc()
			f.logger.Warn("presenter sink failed",
				"sink", s.Name(),
				"kind", string(n.Kind),
				"entry_id", n.Entry.ID,
				"error", err,
			)
		}
	}
}

func (f *Fanout) safeDeliver(ctx context.Context, s Sink, n Notification) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sink panicked: %v", rec)
		}
	}()
	return s.Deliver(ctx, n)
}

var _ device.Presenter = (*Fanout)(nil)
