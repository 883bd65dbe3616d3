package mqtt

import "fmt"

// TopicPrefix is the root of every topic the gateway publishes on.
const TopicPrefix = "sqlgateway"

// Topics builds gateway topic names.
//
//	topics := mqtt.Topics{}
//	topics.Event("statement") // "sqlgateway/events/statement"
type Topics struct{}

// Status is the retained online/offline topic, also used for the Last Will.
//
// Example: sqlgateway/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// Event returns the topic for one event type.
//
// Example: sqlgateway/events/statement
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/events/%s", TopicPrefix, eventType)
}

// Statement is the topic statement events are published on.
func (t Topics) Statement() string {
	return t.Event("statement")
}

// AllEvents matches every event topic.
//
// Pattern: sqlgateway/events/+
func (Topics) AllEvents() string {
	return TopicPrefix + "/events/+"
}
