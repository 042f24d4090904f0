package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/relay/internal/app"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if _, err := logging.New(cfg.LogFormat, cfg.LogLevel); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	a := app.New(cfg, app.BuildInfo{Version: version})
	defer a.Shutdown()

	slog.Info("Starting relay", "version", version, "listen", cfg.ListenAddrs, "tls", cfg.TLSEnabled(), "static_dir", cfg.StaticDir)
	if err := a.Run(ctx); err != nil {
		slog.Error("Relay stopped with error", "error", err)
		return err
	}
	slog.Info("Relay stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
