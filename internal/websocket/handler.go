package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/relay"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultReadLimit    int64 = 64 << 10
	DefaultWriteTimeout       = 10 * time.Second
)

// Options tunes the websocket transport.
type Options struct {
	// OriginPatterns lists host patterns allowed to open cross-origin
	// connections. An empty list accepts every origin.
	OriginPatterns []string
	// ReadLimit caps the size of a single inbound message in bytes.
	ReadLimit int64
	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
}

// Handler upgrades requests to websocket connections and attaches each one to
// the relay topic named by the request URI.
type Handler struct {
	relay  *relay.Relay
	opts   Options
	logger *slog.Logger

	// base is cancelled by Shutdown and parents every connection's context.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandler creates a transport handler feeding r.
func NewHandler(r *relay.Relay, opts Options, logger *slog.Logger) *Handler {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default().With("service", "websocket")
	}
	base, cancel := context.WithCancel(context.Background())
	return &Handler{
		relay:  r,
		opts:   opts,
		logger: logger,
		base:   base,
		cancel: cancel,
	}
}

// IsUpgrade reports whether req asks for a websocket upgrade.
func IsUpgrade(req *http.Request) bool {
	return headerContains(req.Header, "Connection", "upgrade") &&
		headerContains(req.Header, "Upgrade", "websocket")
}

// Handle serves one websocket connection for the lifetime of the socket.
func (h *Handler) Handle(c echo.Context) error {
	req := c.Request()
	logger := middleware.FromContext(req.Context())

	conn, err := websocket.Accept(c.Response(), req, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.OriginPatterns,
		InsecureSkipVerify: len(h.opts.OriginPatterns) == 0,
	})
	if err != nil {
		// Accept has already written the error response.
		logger.Warn("Failed to upgrade connection to WebSocket", "error", err)
		return nil
	}
	conn.SetReadLimit(h.opts.ReadLimit)

	h.wg.Add(1)
	defer h.wg.Done()

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()

	member := h.relay.Connect(req.URL.RequestURI())
	cl := &client{
		conn:         conn,
		member:       member,
		relay:        h.relay,
		logger:       logger.With("path", member.Key(), "client_id", member.ID()),
		writeTimeout: h.opts.WriteTimeout,
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		cl.writePump(ctx)
	}()

	cl.readPump(ctx)

	// Disconnect closes the outbound queue, which lets writePump finish.
	h.relay.Disconnect(member)
	<-written
	conn.Close(websocket.StatusNormalClosure, "")
	return nil
}

// Shutdown cancels every open connection and waits for their handlers to return.
func (h *Handler) Shutdown() error {
	h.cancel()
	h.wg.Wait()
	return nil
}

func headerContains(header http.Header, name, token string) bool {
	for _, v := range header.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
