package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/sensorbridge/internal/credential"
	"github.com/nerrad567/sensorbridge/internal/device"
)

// DefaultInterval is the reconciliation period when none is configured.
const DefaultInterval = 5 * time.Minute

// Fetcher returns the authoritative device list.
type Fetcher interface {
	Fetch(ctx context.Context) ([]device.Descriptor, error)
}

// Reconciler applies a fetched inventory. *device.Registry implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, descriptors []device.Descriptor) device.ReconcileReport
	MarkUntrusted()
}

// HistoryPruner trims event history. *device.SQLiteHistoryRepository implements it.
type HistoryPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Poller runs fetch-then-reconcile cycles at a fixed interval.
type Poller struct {
	fetcher    Fetcher
	reconciler Reconciler
	interval   time.Duration

	pruner    HistoryPruner
	retention time.Duration

	// refresh is a one-slot mailbox so bursts of requests coalesce.
	refresh chan struct{}

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// NewPoller creates a poller. A zero interval means DefaultInterval.
func NewPoller(fetcher Fetcher, reconciler Reconciler, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:    fetcher,
		reconciler: reconciler,
		interval:   interval,
		refresh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// SetHistoryPruner prunes event history older than retention after each cycle.
func (p *Poller) SetHistoryPruner(pruner HistoryPruner, retention time.Duration) {
	p.pruner = pruner
	p.retention = retention
}

// Start runs a cycle immediately and then every interval until ctx is
// cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

// Refresh asks the running loop for an immediate cycle. It never blocks;
// a request made while one is already pending is dropped.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Stop stops scheduling cycles and waits for the loop to exit. A cycle
// in progress runs to completion or its own timeout.
// Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.cycle(ctx)
		case <-p.refresh:
			p.cycle(ctx)
			ticker.Reset(p.interval)
		}
	}
}

// cycle runs one RunOnce and the history pruning, never panicking the loop.
func (p *Poller) cycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("reconciliation cycle panicked", "panic", fmt.Sprint(rec))
		}
	}()

	// Errors are logged by RunOnce.
	_, _ = p.RunOnce(ctx)

	if p.pruner != nil && p.retention > 0 {
		if n, err := p.pruner.PruneHistory(ctx, p.retention); err != nil {
			p.logger.Warn("failed to prune event history", "error", err)
		} else if n > 0 {
			p.logger.Debug("event history pruned", "deleted", n)
		}
	}
}

// RunOnce fetches the inventory and reconciles it. On failure the
// registry is marked untrusted and left otherwise unchanged.
func (p *Poller) RunOnce(ctx context.Context) (device.ReconcileReport, error) {
	start := time.Now()
	descriptors, err := p.fetcher.Fetch(ctx)
	fetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		p.reconciler.MarkUntrusted()
		switch {
		case errors.Is(err, credential.ErrAuth):
			fetchResults.WithLabelValues("auth_error").Inc()
			p.logger.Warn("reconciliation skipped: authentication failed", "error", err)
		default:
			fetchResults.WithLabelValues("fetch_error").Inc()
			p.logger.Warn("reconciliation skipped: inventory fetch failed", "error", err)
		}
		return device.ReconcileReport{}, err
	}

	fetchResults.WithLabelValues("success").Inc()
	return p.reconciler.Reconcile(ctx, descriptors), nil
}
