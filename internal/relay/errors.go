package relay

import "errors"

var (
	// ErrMalformedMessage is returned when an inbound payload is not a JSON object.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrWrongSecret is returned by the gate when a message does not carry the topic's secret.
	ErrWrongSecret = errors.New("wrong secret")
	// ErrDeliveryFailed marks a send to a single member that could not be queued.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Wire reasons carried in the "error" field of an error response.
const (
	ReasonMalformedMessage = "malformed-message"
	ReasonWrongSecret      = "wrong-secret"
)

// reasonFor maps an inbound rejection to the reason string sent to the originator.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrWrongSecret):
		return ReasonWrongSecret
	default:
		return ReasonMalformedMessage
	}
}
