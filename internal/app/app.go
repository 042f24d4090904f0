// Package app wires the relay's services together in a dependency container.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/relay"
	"github.com/nfrund/relay/internal/server"
	"github.com/nfrund/relay/internal/stats"
	"github.com/nfrund/relay/internal/websocket"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
}

// App owns the container holding every long-lived service.
type App struct {
	injector *do.RootScope
}

// New registers all service providers. Nothing is constructed until first use.
func New(cfg *config.Config, build BuildInfo) *App {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, build)
	do.Provide(injector, provideTracing)
	do.Provide(injector, provideBus)
	do.Provide(injector, provideRelay)
	do.Provide(injector, provideStats)
	do.Provide(injector, provideWebsocket)
	do.Provide(injector, provideServer)

	return &App{injector: injector}
}

// Injector exposes the container, mainly for tests.
func (a *App) Injector() do.Injector {
	return a.injector
}

// Run builds the server and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	srv, err := do.Invoke[*server.Server](a.injector)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	return srv.Run(ctx)
}

// Shutdown stops every constructed service, dependents first.
func (a *App) Shutdown() {
	a.injector.Shutdown()
}

// Tracing holds the tracer used by the event bus.
type Tracing struct {
	Tracer  trace.Tracer
	cleanup func()
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown() error {
	t.cleanup()
	return nil
}

func provideTracing(i do.Injector) (*Tracing, error) {
	cfg := do.MustInvoke[*config.Config](i)
	build := do.MustInvoke[BuildInfo](i)

	tracer, cleanup, err := pubsub.SetupOTel(context.Background(), pubsub.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		ServiceName: cfg.ServiceName,
		ZipkinURL:   cfg.ZipkinURL,
		Version:     build.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	if cfg.TracingEnabled {
		slog.Info("Tracing enabled", "zipkin_url", cfg.ZipkinURL)
	}
	return &Tracing{Tracer: tracer, cleanup: cleanup}, nil
}

func provideBus(i do.Injector) (*pubsub.WatermillBridge, error) {
	tracing := do.MustInvoke[*Tracing](i)
	return pubsub.NewWatermillBridgeWithTracer(tracing.Tracer), nil
}

func provideRelay(i do.Injector) (*relay.Relay, error) {
	cfg := do.MustInvoke[*config.Config](i)
	bus := do.MustInvoke[*pubsub.WatermillBridge](i)

	return relay.New(
		relay.WithPublisher(bus),
		relay.WithSendBuffer(cfg.SendBuffer),
		relay.WithGateExemptKinds(cfg.GateExemptKinds...),
		relay.WithNonCacheableKinds(cfg.NonCacheableKinds...),
	), nil
}

func provideStats(i do.Injector) (*stats.Service, error) {
	bus := do.MustInvoke[*pubsub.WatermillBridge](i)
	r := do.MustInvoke[*relay.Relay](i)
	return stats.NewService(bus, stats.WithTopicLister(r))
}

func provideWebsocket(i do.Injector) (*websocket.Handler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	r := do.MustInvoke[*relay.Relay](i)

	return websocket.NewHandler(r, websocket.Options{
		OriginPatterns: cfg.OriginPatterns,
		ReadLimit:      cfg.ReadLimit,
		WriteTimeout:   cfg.WriteTimeout,
	}, nil), nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	ws := do.MustInvoke[*websocket.Handler](i)
	st := do.MustInvoke[*stats.Service](i)

	return server.New(server.Options{
		ListenAddrs:       cfg.ListenAddrs,
		TLSAddr:           cfg.TLSAddr,
		TLSCertFile:       cfg.TLSCertFile,
		TLSKeyFile:        cfg.TLSKeyFile,
		StaticDir:         cfg.StaticDir,
		StaticBrowse:      cfg.StaticBrowse,
		StaticCacheMaxAge: cfg.StaticCacheMaxAge,
		ConnectRate:       cfg.ConnectRate,
		ConnectBurst:      cfg.ConnectBurst,
	}, ws, st), nil
}
