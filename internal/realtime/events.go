// Package realtime maintains the long-lived gateway WebSocket connections,
// one per channel instance, decoding inbound protocol frames into normalized
// events for registered subscribers.
package realtime

import "encoding/json"

// Gateway-side frame event names delivered over the socket.
const (
	FrameMessagesUpsert  = "MESSAGES_UPSERT"
	FrameConnectionState = "CONNECTION_UPDATE"
	FrameMessagesUpdate  = "MESSAGES_UPDATE"
	FrameMessagesDelete  = "MESSAGES_DELETE"
)

// EnabledEvents is the event set requested from the gateway when a channel's
// socket is configured.
var EnabledEvents = []string{
	FrameMessagesUpsert,
	FrameConnectionState,
	FrameMessagesUpdate,
	FrameMessagesDelete,
}

// EventKind classifies a normalized inbound event.
type EventKind string

const (
	EventMessage          EventKind = "message"
	EventConnectionUpdate EventKind = "connection-update"
	EventMessageUpdate    EventKind = "message-update"
	EventMessageDelete    EventKind = "message-delete"
	// EventConnectionLost is emitted once when reconnection attempts for a
	// channel are exhausted and the connection is permanently down.
	EventConnectionLost EventKind = "connection-lost"
)

// Event is the normalized shape handed to subscribers. Message carries the
// decoded payload for EventMessage; State carries the gateway session state
// for EventConnectionUpdate; Raw preserves the frame data for the update and
// delete kinds whose payloads pass through undecoded.
type Event struct {
	Kind      EventKind
	ChannelID string
	Instance  string
	Message   *InboundMessage
	State     string
	Raw       json.RawMessage
}

// Subscriber receives normalized events. Handlers run on the connection's
// read goroutine and must not block.
type Subscriber interface {
	HandleRealtimeEvent(event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(event Event)

// HandleRealtimeEvent implements Subscriber.
func (f SubscriberFunc) HandleRealtimeEvent(event Event) {
	f(event)
}

// frame is the wire shape of every inbound socket message.
type frame struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}
