package relay

import (
	"fmt"
	"sync"
)

// Conn is one member of a topic. The relay only ever queues payloads on it; the
// transport drains Outbound and performs the actual writes.
type Conn struct {
	id  uint64
	key string

	topic *Topic

	mu     sync.RWMutex
	out    chan []byte
	closed bool
}

func newConn(id uint64, key string, buffer int) *Conn {
	if buffer < 1 {
		buffer = 1
	}
	return &Conn{
		id:  id,
		key: key,
		out: make(chan []byte, buffer),
	}
}

// ID returns the process-unique connection id.
func (c *Conn) ID() uint64 { return c.id }

// Key returns the topic key the connection joined.
func (c *Conn) Key() string { return c.key }

// Outbound is closed once the connection has been disconnected and every queued
// payload has been handed out.
func (c *Conn) Outbound() <-chan []byte { return c.out }

// enqueue never blocks. A full buffer or a closed connection is a delivery failure.
func (c *Conn) enqueue(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("%w: connection %d closed", ErrDeliveryFailed, c.id)
	}

	select {
	case c.out <- payload:
		return nil
	default:
		return fmt.Errorf("%w: connection %d send buffer full", ErrDeliveryFailed, c.id)
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.out)
	}
}
