// Package stats keeps running counters of relay activity. It learns about the
// relay only through the observation events published on the bus.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/relay"
)

const meterName = "github.com/nfrund/relay/internal/stats"

// Counters is a set of event tallies.
type Counters struct {
	ConnectionsOpened uint64 `json:"connections_opened"`
	ConnectionsClosed uint64 `json:"connections_closed"`
	MessagesRelayed   uint64 `json:"messages_relayed"`
	MessagesRejected  uint64 `json:"messages_rejected"`
	DeliveryFailures  uint64 `json:"delivery_failures"`
}

// TopicStats are the counters of one live topic.
type TopicStats struct {
	Path    string `json:"path"`
	Members int    `json:"members"`
	Counters
}

// Snapshot is a point-in-time view served on the stats endpoint.
type Snapshot struct {
	Totals      Counters          `json:"totals"`
	LiveTopics  int               `json:"live_topics"`
	LiveMembers int               `json:"live_members"`
	Topics      []TopicStats      `json:"topics"`
	Registry    []relay.TopicInfo `json:"registry,omitempty"`
}

// TopicLister reports the relay's live topics.
type TopicLister interface {
	Topics() []relay.TopicInfo
}

// Service consumes relay events and aggregates them.
type Service struct {
	mu     sync.RWMutex
	totals Counters
	topics map[string]*TopicStats

	lister TopicLister
	logger *slog.Logger

	opened   metric.Int64Counter
	closed   metric.Int64Counter
	relayed  metric.Int64Counter
	rejected metric.Int64Counter
	failed   metric.Int64Counter

	cancel context.CancelFunc
}

// Option is a function that configures a Service.
type Option func(*Service)

// WithTopicLister adds the relay's own topic view to snapshots.
func WithTopicLister(l TopicLister) Option {
	return func(s *Service) { s.lister = l }
}

// WithLogger overrides the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates the service and subscribes it to every relay event.
func NewService(subscriber pubsub.Subscriber, opts ...Option) (*Service, error) {
	svc := &Service{
		topics: make(map[string]*TopicStats),
		logger: slog.Default().With("service", "stats"),
	}
	for _, opt := range opts {
		opt(svc)
	}

	if err := svc.initInstruments(otel.Meter(meterName)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc.cancel = cancel

	err := errors.Join(
		pubsub.Subscribe(ctx, subscriber, relay.EventConnectionOpened, svc.handleOpened),
		pubsub.Subscribe(ctx, subscriber, relay.EventConnectionClosed, svc.handleClosed),
		pubsub.Subscribe(ctx, subscriber, relay.EventMessageRelayed, svc.handleRelayed),
		pubsub.Subscribe(ctx, subscriber, relay.EventMessageRejected, svc.handleRejected),
		pubsub.Subscribe(ctx, subscriber, relay.EventDeliveryFailed, svc.handleDeliveryFailed),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to relay events: %w", err)
	}

	svc.logger.Info("Stats service initialized")
	return svc, nil
}

func (s *Service) initInstruments(meter metric.Meter) error {
	var err, e error
	s.opened, e = meter.Int64Counter("relay.connections.opened", metric.WithDescription("Connections that joined a topic"))
	err = errors.Join(err, e)
	s.closed, e = meter.Int64Counter("relay.connections.closed", metric.WithDescription("Connections that left a topic"))
	err = errors.Join(err, e)
	s.relayed, e = meter.Int64Counter("relay.messages.relayed", metric.WithDescription("Messages admitted and fanned out"))
	err = errors.Join(err, e)
	s.rejected, e = meter.Int64Counter("relay.messages.rejected", metric.WithDescription("Messages answered with an error response"))
	err = errors.Join(err, e)
	s.failed, e = meter.Int64Counter("relay.delivery.failures", metric.WithDescription("Payloads that could not be queued for a member"))
	err = errors.Join(err, e)
	if err != nil {
		return fmt.Errorf("create stats instruments: %w", err)
	}
	return nil
}

func (s *Service) handleOpened(ctx context.Context, ev relay.ConnectionEvent) error {
	s.opened.Add(ctx, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.ConnectionsOpened++
	ts := s.topicLocked(ev.Path)
	ts.ConnectionsOpened++
	s.settleLocked(ts)
	return nil
}

func (s *Service) handleClosed(ctx context.Context, ev relay.ConnectionEvent) error {
	s.closed.Add(ctx, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.ConnectionsClosed++
	ts := s.topicLocked(ev.Path)
	ts.ConnectionsClosed++
	s.settleLocked(ts)
	return nil
}

func (s *Service) handleRelayed(ctx context.Context, ev relay.MessageRelayedEvent) error {
	s.relayed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cached", ev.Cached)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.MessagesRelayed++
	if ts, ok := s.topics[ev.Path]; ok {
		ts.MessagesRelayed++
	}
	return nil
}

func (s *Service) handleRejected(ctx context.Context, ev relay.MessageRejectedEvent) error {
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", ev.Reason)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.MessagesRejected++
	if ts, ok := s.topics[ev.Path]; ok {
		ts.MessagesRejected++
	}
	return nil
}

func (s *Service) handleDeliveryFailed(ctx context.Context, ev relay.DeliveryFailedEvent) error {
	s.failed.Add(ctx, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.DeliveryFailures++
	if ts, ok := s.topics[ev.Path]; ok {
		ts.DeliveryFailures++
	}
	return nil
}

// settleLocked derives membership from the opens and closes seen so far and drops
// the entry once every open has been matched by a close. Events arrive in any
// order, so a close may be counted before its open; such an entry stays until
// the open turns up. s.mu must be held.
func (s *Service) settleLocked(ts *TopicStats) {
	open := int(ts.ConnectionsOpened) - int(ts.ConnectionsClosed)
	if open == 0 {
		delete(s.topics, ts.Path)
		return
	}
	ts.Members = max(open, 0)
}

// topicLocked returns the entry for path, creating it. s.mu must be held.
func (s *Service) topicLocked(path string) *TopicStats {
	ts, ok := s.topics[path]
	if !ok {
		ts = &TopicStats{Path: path}
		s.topics[path] = ts
	}
	return ts
}

// Snapshot returns the current counters, topics sorted by path.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Totals: s.totals,
		Topics: make([]TopicStats, 0, len(s.topics)),
	}
	for _, ts := range s.topics {
		if ts.Members == 0 {
			continue
		}
		snap.Topics = append(snap.Topics, *ts)
		snap.LiveMembers += ts.Members
	}
	s.mu.RUnlock()

	snap.LiveTopics = len(snap.Topics)
	sort.Slice(snap.Topics, func(i, j int) bool { return snap.Topics[i].Path < snap.Topics[j].Path })

	if s.lister != nil {
		snap.Registry = s.lister.Topics()
	}
	return snap
}

// Handler serves the snapshot as JSON.
func (s *Service) Handler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Snapshot())
}

// Shutdown stops the event subscriptions.
func (s *Service) Shutdown() error {
	s.cancel()
	return nil
}
