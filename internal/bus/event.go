package bus

import "time"

// Event is a state-change notification published on the bus.
// ConversationID is empty for events that are not scoped to a conversation.
type Event struct {
	Kind           string
	ConversationID string
	Timestamp      time.Time
	Payload        any
}
