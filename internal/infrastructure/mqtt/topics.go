package mqtt

// TopicPrefix is the root of every topic the bridge publishes or subscribes to.
//
//	sensorbridge/entry/{serial}/state   retained entry snapshot
//	sensorbridge/system/status          retained online/offline (LWT)
//	sensorbridge/command/refresh        request an immediate inventory refresh
const TopicPrefix = "sensorbridge"

// Topics provides builders for bridge topics.
type Topics struct{}

// EntryState returns the retained state topic for an entry.
// Example: "sensorbridge/entry/d1/state"
func (Topics) EntryState(serial string) string {
	return TopicPrefix + "/entry/" + serial + "/state"
}

// SystemStatus returns the bridge online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// CommandRefresh returns the topic that triggers an inventory refresh.
func (Topics) CommandRefresh() string {
	return TopicPrefix + "/command/refresh"
}
