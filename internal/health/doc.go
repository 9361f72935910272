// Package health flags entries that have stopped reporting.
//
// A single rule drives two booleans on every entry:
//
//	fault  = now - LastEventAt >= staleThreshold
//	active = !fault
//
// The Monitor applies the rule to every entry on a fixed sweep interval and
// then asks the entry's type handler to project the booleans onto its state.
// The event router calls Evaluate directly after battery and network events
// so those take effect without waiting for the next sweep.
//
// Each sweep reschedules the next one when it finishes. A panic during a
// sweep is recovered and logged; a panic for one entry is isolated by the
// registry and does not stop the sweep for the others.
package health
