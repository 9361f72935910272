package device

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"
)

// DefaultLowBatteryPercent is the battery percentage below which an entry
// is flagged LowBattery.
const DefaultLowBatteryPercent = 20

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Added   int  `json:"added"`
	Removed int  `json:"removed"`
	Updated int  `json:"updated"`
	Skipped int  `json:"skipped"`
	Trusted bool `json:"trusted"`
}

// SweepResult summarises one pass of Sweep.
type SweepResult struct {
	Visited int
	Changed int
	Failed  int
}

// Registry owns the set of known entries and their lifecycle.
//
// Every mutation (reconciliation, event handling, health sweeps) runs under
// a single registry-wide lock. Callers that do network I/O must do it before
// calling in, never while holding the result of Get.
//
// The repository, when set, is written through on every change. Persistence
// failures are logged; the in-memory registry stays authoritative.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string // insertion order of entries

	types     TypeLookup
	policy    ExclusionPolicy
	repo      Repository
	presenter Presenter
	logger    Logger
	now       func() time.Time

	lowBatteryPercent float64

	// validResponse records whether the previous fetch succeeded with a
	// non-empty inventory. Removal by absence is only trusted when it is set.
	validResponse bool
}

// NewRegistry creates a registry resolving handlers through types.
// repo may be nil, in which case entries are not persisted.
func NewRegistry(types TypeLookup, repo Repository, policy ExclusionPolicy) *Registry {
	return &Registry{
		entries:           make(map[string]*Entry),
		types:             types,
		policy:            policy,
		repo:              repo,
		presenter:         noopPresenter{},
		logger:            noopLogger{},
		now:               time.Now,
		lowBatteryPercent: DefaultLowBatteryPercent,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetPresenter sets the presentation-layer adapter notified of changes.
func (r *Registry) SetPresenter(p Presenter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presenter = p
}

// SetClock replaces the time source. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// SetLowBatteryPercent sets the threshold applied to reported battery levels.
func (r *Registry) SetLowBatteryPercent(pct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lowBatteryPercent = pct
}

// Restore loads persisted entries and marks them PendingRemoval until a
// reconciliation confirms them. Missing fields are filled with defaults and
// state keys the type no longer exposes are pruned.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}

	persisted, err := r.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading entries: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	restored := 0
	for i := range persisted {
		e := persisted[i].DeepCopy()
		if e.ID == "" {
			continue
		}
		if _, exists := r.entries[e.ID]; exists {
			continue
		}

		fillDefaults(e, now)
		if h, ok := r.types.Lookup(e.Type); ok {
			if pruned := PruneState(e.State, h.AllowedFields()); len(pruned) > 0 {
				r.logger.Debug("pruned stale fields from restored entry", "id", e.ID, "fields", pruned)
			}
		}
		e.PendingRemoval = true

		r.entries[e.ID] = e
		r.order = append(r.order, e.ID)
		r.presenter.EntryRegistered(*e.DeepCopy())
		restored++
	}

	r.logger.Info("entries restored", "count", restored)
	return restored, nil
}

// fillDefaults replaces zero values left by older or partial rows.
func fillDefaults(e *Entry, now time.Time) {
	if e.SerialNumber == "" {
		e.SerialNumber = SerialNumber(e.ID)
	}
	if e.Name == "" {
		e.Name = e.SerialNumber
	}
	if e.LastEventAt.IsZero() {
		e.LastEventAt = now
	}
	if e.State == nil {
		e.State = State{}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
}

// Reconcile brings the entry set into agreement with a fresh inventory.
//
// The pass runs in three steps:
//  1. Remove entries that are excluded, retyped, of an unsupported type,
//     or (on a trusted fetch) absent from descriptors.
//  2. Add entries for new descriptors; refresh existing ones and clear
//     PendingRemoval.
//  3. On a trusted fetch, remove restored entries still pending.
//
// A fetch is trusted when the previous fetch also succeeded with a
// non-empty inventory and this one is non-empty. Reconcile is idempotent:
// repeating it with the same descriptors reports no changes.
func (r *Registry) Reconcile(ctx context.Context, descriptors []Descriptor) ReconcileReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var report ReconcileReport

	byID := make(map[string]Descriptor, len(descriptors))
	ordered := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if err := ValidateDescriptor(d); err != nil {
			r.logger.Warn("skipping invalid descriptor", "id", d.ID, "error", err)
			report.Skipped++
			continue
		}
		if _, dup := byID[d.ID]; !dup {
			ordered = append(ordered, d.ID)
		}
		byID[d.ID] = d
	}

	report.Trusted = r.validResponse && len(byID) > 0

	// Step 1: drop entries that must not exist.
	for _, id := range slices.Clone(r.order) {
		e := r.entries[id]
		d, present := byID[id]

		var reason string
		switch {
		case r.policy.Excludes(e.ID, e.Type):
			reason = "excluded"
		case present && d.Type != e.Type:
			reason = "retyped"
		case !r.supported(e.Type):
			reason = "unsupported type"
		case !present && report.Trusted && !e.PendingRemoval:
			reason = "absent upstream"
		default:
			continue
		}
		r.removeLocked(ctx, id, reason)
		report.Removed++
	}

	// Step 2: add or refresh.
	for _, id := range ordered {
		d := byID[id]
		if r.policy.Excludes(d.ID, d.Type) {
			r.logger.Debug("descriptor excluded by policy", "id", d.ID, "type", d.Type)
			continue
		}

		h, ok := r.types.Lookup(d.Type)
		if !ok {
			r.logger.Debug("descriptor type not supported", "id", d.ID, "type", d.Type)
			report.Skipped++
			continue
		}

		if e, exists := r.entries[id]; exists {
			if r.refreshLocked(ctx, e, d, h, now) {
				report.Updated++
			}
			continue
		}

		r.addLocked(ctx, d, h, now)
		report.Added++
	}

	// Step 3: purge restored entries the trusted inventory no longer lists.
	if report.Trusted {
		for _, id := range slices.Clone(r.order) {
			if r.entries[id].PendingRemoval {
				r.removeLocked(ctx, id, "not confirmed upstream")
				report.Removed++
			}
		}
	}

	r.validResponse = len(byID) > 0

	r.logger.Info("reconciliation complete",
		"added", report.Added,
		"removed", report.Removed,
		"updated", report.Updated,
		"skipped", report.Skipped,
		"trusted", report.Trusted,
		"entries", len(r.entries),
	)
	recordReconcile(report, len(r.entries))
	return report
}

// MarkUntrusted records a failed fetch so the next successful reconciliation
// does not remove entries by absence.
func (r *Registry) MarkUntrusted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validResponse = false
}

// Trusted reports whether the last fetch succeeded with a non-empty inventory.
func (r *Registry) Trusted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validResponse
}

// Get retrieves an entry by ID. Absence is a normal outcome.
// The returned entry is a deep copy; callers can safely modify it.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e.DeepCopy(), true
}

// All returns deep copies of every entry in insertion order.
func (r *Registry) All() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, *r.entries[id].DeepCopy())
	}
	return entries
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Remove deletes an entry. The presenter's unregistration hook has run
// by the time Remove returns.
// Returns ErrEntryNotFound if the entry does not exist.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return ErrEntryNotFound
	}
	r.removeLocked(ctx, id, "requested")
	return nil
}

// Mutate runs fn on the live entry under the registry lock. fn reports
// whether it changed the entry; changed entries are persisted and
// presented. found is false when no entry has the ID.
func (r *Registry) Mutate(ctx context.Context, id string, fn func(e *Entry) (bool, error)) (found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false, nil
	}

	changed, err := fn(e)
	if changed {
		e.UpdatedAt = r.now()
		r.persistLocked(ctx, e)
		r.presenter.EntryUpdated(*e.DeepCopy())
	}
	return true, err
}

// Sweep runs fn for every entry under the registry lock. A panic in fn is
// recovered and counted as a failure for that entry only.
func (r *Registry) Sweep(ctx context.Context, fn func(e *Entry) bool) SweepResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result SweepResult
	for _, id := range r.order {
		e := r.entries[id]
		result.Visited++

		changed, err := visit(e, fn)
		if err != nil {
			result.Failed++
			r.logger.Error("sweep failed for entry", "id", id, "type", e.Type, "error", err)
			continue
		}
		if changed {
			result.Changed++
			e.UpdatedAt = r.now()
			r.persistLocked(ctx, e)
			r.presenter.EntryUpdated(*e.DeepCopy())
		}
	}
	return result
}

// visit calls fn, converting a panic into an error.
func visit(e *Entry, fn func(e *Entry) bool) (changed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(e), nil
}

func (r *Registry) supported(typeTag string) bool {
	_, ok := r.types.Lookup(typeTag)
	return ok
}

// addLocked creates an entry from a descriptor. Caller holds r.mu.
func (r *Registry) addLocked(ctx context.Context, d Descriptor, h TypeHandler, now time.Time) {
	state, err := h.InitContext(d)
	if err != nil {
		r.logger.Warn("descriptor partially malformed, using defaults", "id", d.ID, "type", d.Type, "error", err)
	}
	if state == nil {
		state = State{}
	}

	e := &Entry{
		ID:           d.ID,
		Name:         d.Label(),
		Type:         d.Type,
		SerialNumber: SerialNumber(d.ID),
		LastEventAt:  now,
		Active:       true,
		Fault:        false,
		State:        state,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.applyCommonLocked(e, d)
	h.UpdateHealth(e)

	r.entries[e.ID] = e
	r.order = append(r.order, e.ID)
	r.persistLocked(ctx, e)
	r.presenter.EntryRegistered(*e.DeepCopy())
	entriesTotal.Set(float64(len(r.entries)))

	r.logger.Info("entry added", "id", e.ID, "type", e.Type, "name", e.Name)
}

// refreshLocked applies a descriptor to an existing entry and reports
// whether anything changed. Caller holds r.mu.
func (r *Registry) refreshLocked(ctx context.Context, e *Entry, d Descriptor, h TypeHandler, now time.Time) bool {
	before := e.DeepCopy()

	if err := h.ApplyDescriptor(e, d); err != nil {
		r.logger.Warn("descriptor partially malformed, keeping defaults", "id", d.ID, "type", d.Type, "error", err)
	}
	if e.State == nil {
		e.State = State{}
	}
	e.Name = d.Label()
	r.applyCommonLocked(e, d)
	e.PendingRemoval = false
	h.UpdateHealth(e)

	if entriesEqual(before, e) {
		return false
	}

	e.UpdatedAt = now
	r.persistLocked(ctx, e)
	r.presenter.EntryUpdated(*e.DeepCopy())
	return true
}

// applyCommonLocked applies the reported battery and network status shared
// by every sensor type.
func (r *Registry) applyCommonLocked(e *Entry, d Descriptor) {
	var battery BatteryStatus
	ok, err := d.DecodeReported(ReportedBatteryStatus, &battery)
	switch {
	case err != nil:
		r.logger.Warn("ignoring reported battery status", "id", d.ID, "error", err)
	case ok:
		e.BatteryLevel = battery.Percentage
		e.LowBattery = battery.Percentage < r.lowBatteryPercent
	}

	var network NetworkStatus
	ok, err = d.DecodeReported(ReportedNetworkStatus, &network)
	switch {
	case err != nil:
		r.logger.Warn("ignoring reported network status", "id", d.ID, "error", err)
	case ok:
		e.Touch(network.UpdateTime)
	}
}

// removeLocked deletes an entry and notifies the presenter. Caller holds r.mu.
func (r *Registry) removeLocked(ctx context.Context, id, reason string) {
	e, ok := r.entries[id]
	if !ok {
		return
	}

	delete(r.entries, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}

	r.presenter.EntryUnregistered(*e.DeepCopy())
	entriesTotal.Set(float64(len(r.entries)))

	if r.repo != nil {
		if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrEntryNotFound) {
			r.logger.Warn("failed to delete persisted entry", "id", id, "error", err)
		}
	}

	r.logger.Info("entry removed", "id", id, "type", e.Type, "reason", reason)
}

// persistLocked writes an entry through to the repository. Caller holds r.mu.
func (r *Registry) persistLocked(ctx context.Context, e *Entry) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Save(ctx, e); err != nil {
		r.logger.Warn("failed to persist entry", "id", e.ID, "error", err)
	}
}

// entriesEqual compares the fields reconciliation can change.
func entriesEqual(a, b *Entry) bool {
	return a.Name == b.Name &&
		a.LastEventAt.Equal(b.LastEventAt) &&
		a.Active == b.Active &&
		a.Fault == b.Fault &&
		a.LowBattery == b.LowBattery &&
		a.BatteryLevel == b.BatteryLevel &&
		a.PendingRemoval == b.PendingRemoval &&
		reflect.DeepEqual(a.State, b.State)
}
