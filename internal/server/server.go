package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	relaymw "github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/stats"
	"github.com/nfrund/relay/internal/websocket"
)

// DefaultShutdownTimeout bounds graceful shutdown of the HTTP listeners.
const DefaultShutdownTimeout = 10 * time.Second

// Options configures listeners, static files and connection limits.
type Options struct {
	ListenAddrs []string

	TLSAddr     string
	TLSCertFile string
	TLSKeyFile  string

	// StaticDir is served for plain requests when set. Fs, if non-nil, is used
	// instead of the OS filesystem rooted at StaticDir.
	StaticDir         string
	Fs                afero.Fs
	StaticBrowse      bool
	StaticCacheMaxAge time.Duration

	ConnectRate  float64
	ConnectBurst int

	ShutdownTimeout time.Duration
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E *echo.Echo

	opts   Options
	ws     *websocket.Handler
	stats  *stats.Service
	static echo.HandlerFunc
	logger *slog.Logger
}

// Listener is a bound socket and whether it should speak TLS.
type Listener struct {
	net.Listener
	TLS bool
}

// New creates a new Server instance. stats may be nil.
func New(opts Options, ws *websocket.Handler, st *stats.Service) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	setupErrorHandling(e)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(relaymw.Logger)
	e.Use(relaymw.AccessLog())

	s := &Server{
		E:      e,
		opts:   opts,
		ws:     ws,
		stats:  st,
		logger: slog.Default().With("service", "server"),
	}
	if fsys := s.staticFs(); fsys != nil {
		s.static = relaymw.CacheControl(opts.StaticCacheMaxAge)(echo.WrapHandler(staticHandler(fsys, opts.StaticBrowse)))
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) staticFs() afero.Fs {
	switch {
	case s.opts.Fs != nil:
		return s.opts.Fs
	case s.opts.StaticDir != "":
		return afero.NewBasePathFs(afero.NewOsFs(), s.opts.StaticDir)
	default:
		return nil
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.E
}

// Run binds every configured listener and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listeners, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, listeners)
}

// Listen binds the configured addresses.
func (s *Server) Listen() ([]Listener, error) {
	var listeners []Listener
	bind := func(addr string, tls bool) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		listeners = append(listeners, Listener{Listener: ln, TLS: tls})
		return nil
	}

	for _, addr := range s.opts.ListenAddrs {
		if err := bind(addr, false); err != nil {
			closeAll(listeners)
			return nil, err
		}
	}
	if s.opts.TLSAddr != "" {
		if err := bind(s.opts.TLSAddr, true); err != nil {
			closeAll(listeners)
			return nil, err
		}
	}
	return listeners, nil
}

// Serve runs an HTTP server on each listener. When ctx is cancelled the servers
// stop accepting, open websockets are closed and Serve returns once all are done.
func (s *Server) Serve(ctx context.Context, listeners []Listener) error {
	if len(listeners) == 0 {
		return errors.New("no listeners configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	servers := make([]*http.Server, 0, len(listeners))

	for _, ln := range listeners {
		srv := &http.Server{
			Handler:           s.E,
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, srv)

		g.Go(func() error {
			s.logger.Info("Server listening", "addr", ln.Addr().String(), "tls", ln.TLS)
			var err error
			if ln.TLS {
				err = srv.ServeTLS(ln, s.opts.TLSCertFile, s.opts.TLSKeyFile)
			} else {
				err = srv.Serve(ln)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", ln.Addr(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		// Hijacked websocket connections are not tracked by http.Server.
		if s.ws != nil {
			errs = append(errs, s.ws.Shutdown())
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func closeAll(listeners []Listener) {
	for _, ln := range listeners {
		ln.Close()
	}
}
