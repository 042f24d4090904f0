package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/relay/internal/pubsub"
)

// DefaultSendBuffer is the number of payloads queued per connection before
// further deliveries to it fail.
const DefaultSendBuffer = 256

// Relay wires connections to topics: it registers and replays on connect, runs
// inbound messages through the gate and engine, and cleans up on disconnect.
type Relay struct {
	registry *Registry
	engine   *Engine

	// nextID is shared by every topic; ids are never reused.
	nextID atomic.Uint64

	sendBuffer   int
	exemptKinds  []string
	nonCacheable []string

	publisher pubsub.Publisher
	instance  string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithPublisher sends observation events to p.
func WithPublisher(p pubsub.Publisher) Option {
	return func(r *Relay) { r.publisher = p }
}

// WithLogger sets the logger used for join, leave and message observations.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithClock overrides the wall clock used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(n int) Option {
	return func(r *Relay) { r.sendBuffer = n }
}

// WithGateExemptKinds replaces the kinds admitted without a secret check.
func WithGateExemptKinds(kinds ...string) Option {
	return func(r *Relay) { r.exemptKinds = kinds }
}

// WithNonCacheableKinds replaces the kinds that never become the cached message.
func WithNonCacheableKinds(kinds ...string) Option {
	return func(r *Relay) { r.nonCacheable = kinds }
}

// New creates a relay with an empty registry.
func New(opts ...Option) *Relay {
	r := &Relay{
		registry:     NewRegistry(),
		sendBuffer:   DefaultSendBuffer,
		exemptKinds:  DefaultGateExemptKinds,
		nonCacheable: DefaultNonCacheableKinds,
		instance:     uuid.NewString(),
		logger:       slog.Default().With("service", "relay"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.engine = NewEngine(NewGate(r.exemptKinds...), r.nonCacheable...)
	return r
}

// Connect creates a connection for key and makes it a member of the key's topic.
// If the topic has a cached message it is queued on the connection before Connect
// returns, ahead of any other traffic.
func (r *Relay) Connect(key string) *Conn {
	c := newConn(r.nextID.Add(1), key, r.sendBuffer)

	for {
		t := r.registry.GetOrCreate(key)
		t.mu.Lock()
		members, replayed, ok := t.addLocked(c)
		t.mu.Unlock()
		if !ok {
			// Lost a race with the last member leaving; the registry will hand out a fresh topic.
			continue
		}

		r.logger.Info("Client joined topic", "path", key, "client_id", c.id, "members", members, "replayed", replayed)
		emit(r, EventConnectionOpened, ConnectionEvent{Path: key, ClientID: c.id, Members: members})
		return c
	}
}

// Receive runs one inbound payload from c through the gate and engine.
func (r *Relay) Receive(c *Conn, raw []byte) Outcome {
	t := c.topic
	if t == nil {
		return Outcome{Dropped: true}
	}

	out := r.engine.Handle(t, c, raw, r.now())
	r.observe(c, out)
	return out
}

// Disconnect removes c from its topic. The last member out takes the topic, its
// secret and its cache with it; otherwise the remaining members are told with a
// client-gone message. Disconnecting twice is a no-op.
func (r *Relay) Disconnect(c *Conn) {
	t := c.topic
	if t == nil {
		c.close()
		return
	}
	notice := goneNotice(c.key, c.id, r.now())

	t.mu.Lock()
	remaining, removed := t.removeLocked(c)
	var failed []uint64
	if removed && remaining > 0 {
		_, failed = fanOutLocked(t, notice, c.id)
	}
	t.mu.Unlock()

	c.close()
	if !removed {
		return
	}

	if remaining == 0 {
		r.registry.RemoveIfEmpty(c.key)
	}

	r.logger.Info("Client left topic", "path", c.key, "client_id", c.id, "members", remaining)
	emit(r, EventConnectionClosed, ConnectionEvent{Path: c.key, ClientID: c.id, Members: remaining})
	r.reportFailures(c, failed)
}

// Topics describes every live topic.
func (r *Relay) Topics() []TopicInfo {
	return r.registry.Snapshot()
}

// Registry exposes the topic registry.
func (r *Relay) Registry() *Registry {
	return r.registry
}

func (r *Relay) observe(c *Conn, out Outcome) {
	switch {
	case out.Dropped:
		r.logger.Debug("Dropped message from departed client", "path", c.key, "client_id", c.id)
		return
	case out.Err != nil:
		reason := reasonFor(out.Err)
		r.logger.Warn("Message rejected", "path", c.key, "client_id", c.id, "reason", reason, "error", out.Err)
		emit(r, EventMessageRejected, MessageRejectedEvent{Path: c.key, ClientID: c.id, Reason: reason})
	default:
		if out.Verdict == VerdictSecretFixed {
			r.logger.Info("Topic secret set", "path", c.key, "client_id", c.id)
		}
		r.logger.Info("Message relayed",
			"path", c.key,
			"client_id", c.id,
			"kind", out.Kind,
			"verdict", out.Verdict.String(),
			"recipients", out.Recipients,
			"cached", out.Cached)
		emit(r, EventMessageRelayed, MessageRelayedEvent{
			Path:       c.key,
			ClientID:   c.id,
			Kind:       out.Kind,
			Recipients: out.Recipients,
			Cached:     out.Cached,
		})
	}
	r.reportFailures(c, out.Failed)
}

func (r *Relay) reportFailures(c *Conn, failed []uint64) {
	for _, id := range failed {
		r.logger.Warn("Delivery failed", "path", c.key, "client_id", c.id, "recipient_id", id)
		emit(r, EventDeliveryFailed, DeliveryFailedEvent{Path: c.key, ClientID: c.id, RecipientID: id})
	}
}

// emit publishes an observation event. Bus failures are logged and never reach
// the connection that triggered the event.
func emit[T any](r *Relay, event pubsub.Event[T], payload T) {
	if r.publisher == nil {
		return
	}
	meta := map[string]string{MetaKeyInstance: r.instance}
	if err := pubsub.Publish(context.Background(), r.publisher, event, payload, meta); err != nil {
		r.logger.Error("Failed to publish relay event", "topic", event.Name(), "error", err)
	}
}
