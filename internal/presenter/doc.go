// Package presenter forwards registry lifecycle changes to local consumers.
//
// Fanout implements device.Presenter. The registry calls it under its lock,
// so Fanout only copies the entry onto a pending list; a worker goroutine
// delivers each notification to every sink in order. Pending updates for one
// entry collapse into the latest snapshot. Registrations and unregistrations
// always reach the sinks; an update for a new entry is dropped and counted
// once the list is full.
//
// Sinks:
//
//	MQTTSink    retained JSON snapshot per entry, cleared on unregister
//	HubSink     WebSocket broadcast of entry.registered/updated/unregistered
//	InfluxSink  one sensor_reading point per registration or update
//
// A failing sink is logged and counted; other sinks still receive the
// notification.
package presenter
