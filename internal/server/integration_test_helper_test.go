package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/relay"
	"github.com/nfrund/relay/internal/server"
	"github.com/nfrund/relay/internal/stats"
	"github.com/nfrund/relay/internal/websocket"
)

// integrationEnv is a fully wired server serving on a loopback listener.
type integrationEnv struct {
	Relay  *relay.Relay
	Stats  *stats.Service
	Server *server.Server
	Addr   string

	cancel context.CancelFunc
	done   chan error
}

// setupIntegrationTest wires bus, relay, stats, transport and server the way the
// application does and starts serving. The returned cleanup stops the server
// and reports any serve error.
func setupIntegrationTest(t *testing.T, opts server.Options) (*integrationEnv, func()) {
	t.Helper()

	bus := pubsub.NewWatermillBridge()
	r := relay.New(relay.WithPublisher(bus))
	st, err := stats.NewService(bus, stats.WithTopicLister(r))
	require.NoError(t, err)

	ws := websocket.NewHandler(r, websocket.Options{}, nil)
	srv := server.New(opts, ws, st)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	env := &integrationEnv{
		Relay:  r,
		Stats:  st,
		Server: srv,
		Addr:   ln.Addr().String(),
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		env.done <- srv.Serve(ctx, []server.Listener{{Listener: ln}})
	}()

	cleanup := func() {
		cancel()
		select {
		case err := <-env.done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
		st.Shutdown()
		bus.Close()
	}
	return env, cleanup
}

func (e *integrationEnv) httpURL(path string) string { return "http://" + e.Addr + path }

func (e *integrationEnv) wsURL(path string) string { return "ws://" + e.Addr + path }
