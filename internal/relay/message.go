package relay

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Field names recognized or written by the relay.
const (
	FieldKind             = "kind"
	FieldSecret           = "secret"
	FieldServerDate       = "server-date"
	FieldServerTimeMillis = "server-time-millis"
	FieldServerPath       = "server-path"
	FieldClientID         = "client-id"
	FieldSelf             = "self"
	FieldError            = "error"
	FieldData             = "data"
)

// Message kinds with special handling.
const (
	KindFormData   = "form-data"
	KindResetForm  = "reset-form"
	KindError      = "error"
	KindClientGone = "client-gone"
)

// isoMillis matches the millisecond ISO-8601 form browsers produce with toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Message is a parsed inbound payload. Unknown fields are kept as raw JSON and
// passed through untouched.
type Message struct {
	Kind   string
	Secret string

	fields map[string]json.RawMessage
}

// ParseMessage decodes raw into a Message. Anything other than a JSON object, or an
// object whose kind or secret is not a string, is rejected with ErrMalformedMessage.
func ParseMessage(raw []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}

	m := &Message{fields: fields}
	if err := m.stringField(FieldKind, &m.Kind); err != nil {
		return nil, err
	}
	if err := m.stringField(FieldSecret, &m.Secret); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) stringField(name string, dst *string) error {
	v, ok := m.fields[name]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: field %q must be a string", ErrMalformedMessage, name)
	}
	return nil
}

// stamp returns the outbound form of the message: secret and any client-supplied
// self marker removed, server metadata added or overwritten. Only withSelf sets self.
func (m *Message) stamp(key string, clientID uint64, now time.Time) envelope {
	out := make(envelope, len(m.fields)+4)
	maps.Copy(out, m.fields)
	delete(out, FieldSecret)
	delete(out, FieldSelf)
	out.setServerFields(key, now)
	out.set(FieldClientID, clientID)
	return out
}

// envelope is an outbound JSON object under construction.
type envelope map[string]json.RawMessage

func (e envelope) set(name string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		// Only strings, integers and raw JSON are ever set.
		panic(fmt.Sprintf("relay: marshal field %q: %v", name, err))
	}
	e[name] = b
}

func (e envelope) setServerFields(key string, now time.Time) {
	now = now.UTC()
	e.set(FieldServerDate, now.Format(isoMillis))
	e.set(FieldServerTimeMillis, now.UnixMilli())
	e.set(FieldServerPath, key)
}

// withSelf returns a copy carrying the self marker.
func (e envelope) withSelf() envelope {
	out := maps.Clone(e)
	out.set(FieldSelf, 1)
	return out
}

func (e envelope) encode() []byte {
	b, err := json.Marshal(map[string]json.RawMessage(e))
	if err != nil {
		panic(fmt.Sprintf("relay: marshal envelope: %v", err))
	}
	return b
}

// errorResponse builds the reply sent to an originator whose message was refused.
func errorResponse(reason string, raw []byte) []byte {
	e := make(envelope, 3)
	e.set(FieldKind, KindError)
	e.set(FieldError, reason)
	e.set(FieldData, string(raw))
	return e.encode()
}

// goneNotice builds the client-gone lifecycle message for a departed connection.
func goneNotice(key string, clientID uint64, now time.Time) []byte {
	e := make(envelope, 5)
	e.set(FieldKind, KindClientGone)
	e.set(FieldClientID, clientID)
	e.setServerFields(key, now)
	return e.encode()
}
