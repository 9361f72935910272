// Package mqtt connects the bridge to an MQTT broker.
//
// Entry snapshots are published retained on sensorbridge/entry/{serial}/state
// so late subscribers see current state; an empty retained payload clears the
// topic when an entry is removed. The bridge status lives on
// sensorbridge/system/status: "online" on every (re)connect, "offline" on a
// graceful Close, and the same "offline" message as Last Will when the
// process vanishes.
//
// One inbound topic, sensorbridge/command/refresh, lets local automation
// request an immediate inventory refresh.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.EntryState("d1")
//	err = client.PublishRetained(topic, payload)
//
// Subscriptions are tracked and restored after reconnects. Handlers run with
// panic recovery.
package mqtt
