// Package device provides the Device Registry for sensorbridge.
//
// The registry is the authoritative set of sensor entries mirrored from the
// cloud inventory. It owns entry lifecycle: entries are created only by
// reconciliation or restoration, mutated by the event router and health
// monitor through Mutate and Sweep, and destroyed only by Remove.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                         Device Registry                          │
//	│                                                                  │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌──────────────┐  │
//	│  │     Registry     │   │    Repository    │   │ TypeLookup   │  │
//	│  │  (registry.go)   │──▶│ (repository.go)  │   │ (handler.go) │  │
//	│  │                  │   │                  │   │              │  │
//	│  │ • Reconcile      │   │ • SQLite upsert  │   │ • per-type   │  │
//	│  │ • Restore        │   │ • NULL-tolerant  │   │   state      │  │
//	│  │ • Mutate / Sweep │   │   restore        │   │ • health     │  │
//	│  └──────────────────┘   └──────────────────┘   └──────────────┘  │
//	│           │                                                      │
//	└───────────│──────────────────────────────────────────────────────┘
//	            ▼
//	     Presenter (MQTT, WebSocket, InfluxDB)
//
// # Reconciliation
//
// Reconcile is idempotent. Removal of entries missing from the inventory
// only happens on a trusted fetch: the previous fetch must also have
// succeeded with a non-empty device list. A failed or empty fetch therefore
// never empties the registry. Entries restored at startup stay
// PendingRemoval until a fetch lists them.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. A single mutex
// serialises every mutation.
//
// # Usage
//
//	types := sensor.NewDefaultRegistry()
//	reg := device.NewRegistry(types, device.NewSQLiteRepository(db), policy)
//	reg.SetLogger(log)
//	if _, err := reg.Restore(ctx); err != nil {
//	    return err
//	}
//	report := reg.Reconcile(ctx, descriptors)
package device
