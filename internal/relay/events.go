package relay

import "github.com/nfrund/relay/internal/pubsub"

// ConnectionEvent is published when a member joins or leaves a topic.
type ConnectionEvent struct {
	Path     string `json:"path"`
	ClientID uint64 `json:"client_id"`
	Members  int    `json:"members"`
}

// MessageRelayedEvent is published after an admitted message has been fanned out.
type MessageRelayedEvent struct {
	Path       string `json:"path"`
	ClientID   uint64 `json:"client_id"`
	Kind       string `json:"kind,omitempty"`
	Recipients int    `json:"recipients"`
	Cached     bool   `json:"cached"`
}

// MessageRejectedEvent is published when a message is answered with an error response.
type MessageRejectedEvent struct {
	Path     string `json:"path"`
	ClientID uint64 `json:"client_id"`
	Reason   string `json:"reason"`
}

// DeliveryFailedEvent is published for each payload that could not be queued for a member.
type DeliveryFailedEvent struct {
	Path        string `json:"path"`
	ClientID    uint64 `json:"client_id"`
	RecipientID uint64 `json:"recipient_id"`
}

// Observation topics.
var (
	EventConnectionOpened = pubsub.NewEvent[ConnectionEvent]("relay.connection.opened")
	EventConnectionClosed = pubsub.NewEvent[ConnectionEvent]("relay.connection.closed")
	EventMessageRelayed   = pubsub.NewEvent[MessageRelayedEvent]("relay.message.relayed")
	EventMessageRejected  = pubsub.NewEvent[MessageRejectedEvent]("relay.message.rejected")
	EventDeliveryFailed   = pubsub.NewEvent[DeliveryFailedEvent]("relay.delivery.failed")
)

// MetaKeyInstance identifies the relay process that emitted an event.
const MetaKeyInstance = "instance"
