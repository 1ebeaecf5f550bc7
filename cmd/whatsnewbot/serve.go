package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/webframp/whatsnewbot/srv"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var listenAddr string
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command server and the changelog watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return serve(cmd.Context(), cfg, !noWatch)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on (overrides listen_addr)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "only answer commands, never announce")
	return cmd
}

func serve(ctx context.Context, cfg srv.Config, watch bool) error {
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName("whatsnewbot"),
		otelconfig.WithServiceVersion(srv.Version),
	)
	if err != nil {
		slog.Warn("opentelemetry disabled", "error", err)
	} else {
		defer otelShutdown()
	}

	markers := srv.NewMarkerClient(cfg)
	server, err := srv.New(cfg, markers)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer server.Close()

	source, err := srv.OpenSource(ctx, cfg, server.State)
	if err != nil {
		return err
	}
	server.Source = source

	var notifier srv.Notifier = srv.LogNotifier{MaxLength: cfg.MaxMessageLength}
	if cfg.WebhookURL != "" {
		notifier = srv.NewDiscordNotifier(cfg.WebhookURL, cfg.MaxMessageLength)
	} else if watch {
		slog.Warn("no webhook_url configured, announcements are only logged")
	}

	markers.DeployMarker(ctx)
	slog.Info("whatsnewbot starting", "version", srv.Version, "host", cfg.Hostname)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(cfg.ListenAddr)
	})
	if watch {
		w := srv.NewWatcher(cfg, source, server.Fetcher, server.State, notifier)
		w.Markers = markers
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
