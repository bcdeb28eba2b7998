package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcus/scopes/internal/api"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the HTTP API",
	Long:    `Serves the GitHub integration API. The acting user is read from the X-User-ID header set by the fronting auth proxy.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			cfg.ListenAddr = v
		}

		logger := newLogger(cfg, os.Stderr)
		slog.SetDefault(logger)

		a, err := openApp(cfg, logger)
		if err != nil {
			slog.Error("open app", "err", err)
			return err
		}
		defer a.Close()

		srv := api.NewServer(api.Config{
			ListenAddr:         cfg.ListenAddr,
			RateLimitGitHub:    cfg.RateLimitGitHub,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		}, a.store, a.engine)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Start(); err != nil {
			slog.Error("start server", "err", err)
			return err
		}
		slog.Info("server started", "addr", cfg.ListenAddr, "db", cfg.DBPath, "driver", a.store.Driver())

		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "err", err)
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
