// Package events applies inbound webhook events to registry entries.
//
// The cloud delivers events as JSON envelopes:
//
//	{"event": {"eventId": "...", "targetName": "projects/p/devices/d",
//	           "eventType": "temperature", "data": {...}, "timestamp": "..."}}
//
// Router.Handle parses the envelope, resolves the target entry and mutates
// it under the registry lock. Events for identifiers the registry does not
// know are dropped without error: events and inventory fetches are not
// ordered relative to each other.
//
// Two event types are handled for every sensor type: batteryStatus updates
// the battery level and low-battery flag, and networkStatus advances the
// liveness clock. Both trigger an immediate health evaluation. All other
// event types are dispatched to the entry's type handler.
package events
