package relay

import "time"

// DefaultNonCacheableKinds lists kinds that are relayed but never replayed to
// late joiners.
var DefaultNonCacheableKinds = []string{KindFormData, KindResetForm}

// Outcome describes what happened to one inbound message.
type Outcome struct {
	Kind    string
	Verdict Verdict
	// Err is ErrMalformedMessage or ErrWrongSecret when the message was refused.
	Err error
	// Recipients counts members other than the originator the message was queued for.
	Recipients int
	// Failed lists connections a payload could not be queued for, originator included.
	Failed []uint64
	Cached bool
	// Dropped is set when the originator had already left the topic.
	Dropped bool
}

// Engine annotates, caches and fans out admitted messages.
type Engine struct {
	gate         *Gate
	nonCacheable map[string]struct{}
}

// NewEngine builds an engine that admits through gate and never caches the given kinds.
func NewEngine(gate *Gate, nonCacheableKinds ...string) *Engine {
	return &Engine{
		gate:         gate,
		nonCacheable: setOf(nonCacheableKinds),
	}
}

// Handle processes raw from a member of t. Parse failures are answered before the
// topic lock is taken; everything from the gate onwards runs inside it.
func (e *Engine) Handle(t *Topic, from *Conn, raw []byte, now time.Time) Outcome {
	msg, err := ParseMessage(raw)
	if err != nil {
		out := Outcome{Err: err}
		if from.enqueue(errorResponse(ReasonMalformedMessage, raw)) != nil {
			out.Failed = append(out.Failed, from.id)
		}
		return out
	}

	stamped := msg.stamp(t.key, from.id, now)
	payload := stamped.encode()
	echo := stamped.withSelf().encode()
	out := Outcome{Kind: msg.Kind}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasMemberLocked(from) {
		out.Dropped = true
		return out
	}

	out.Verdict, out.Err = e.gate.Admit(t, msg)
	if out.Err != nil {
		if from.enqueue(errorResponse(reasonFor(out.Err), raw)) != nil {
			out.Failed = append(out.Failed, from.id)
		}
		return out
	}

	if e.Cacheable(msg.Kind) {
		t.cached = payload
		out.Cached = true
	}

	out.Recipients, out.Failed = fanOutLocked(t, payload, from.id)
	if from.enqueue(echo) != nil {
		out.Failed = append(out.Failed, from.id)
	}
	return out
}

// Cacheable reports whether messages of kind replace the topic's cached message.
func (e *Engine) Cacheable(kind string) bool {
	_, skip := e.nonCacheable[kind]
	return !skip
}

// fanOutLocked queues payload for every member except the one with id except.
// A failure for one member never stops delivery to the rest.
func fanOutLocked(t *Topic, payload []byte, except uint64) (reached int, failed []uint64) {
	for id, c := range t.members {
		if id == except {
			continue
		}
		if err := c.enqueue(payload); err != nil {
			failed = append(failed, id)
			continue
		}
		reached++
	}
	return reached, failed
}
