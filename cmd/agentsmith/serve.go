package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/agentsmith/internal/archive"
	"github.com/alfredjeanlab/agentsmith/internal/auth"
	"github.com/alfredjeanlab/agentsmith/internal/bus"
	"github.com/alfredjeanlab/agentsmith/internal/config"
	"github.com/alfredjeanlab/agentsmith/internal/events"
	"github.com/alfredjeanlab/agentsmith/internal/metrics"
	"github.com/alfredjeanlab/agentsmith/internal/server"
	"github.com/alfredjeanlab/agentsmith/internal/store"
	"github.com/alfredjeanlab/agentsmith/internal/store/memstore"
	"github.com/alfredjeanlab/agentsmith/internal/store/postgres"
	"github.com/alfredjeanlab/agentsmith/internal/stream"
	"github.com/alfredjeanlab/agentsmith/internal/sweeper"
	"github.com/alfredjeanlab/agentsmith/internal/transform"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "Start the agentsmith server",
	GroupID:           "system",
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		metrics.Register()

		eventBus := bus.New(logger)
		eventBus.OnPanic = func(string) { metrics.BusHandlerPanics.Inc() }

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("event mirror enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("event mirror disabled (AGENTSMITH_NATS_URL not set)")
		}

		var resolver auth.Resolver
		tokens, err := auth.ParseStaticTokens(cfg.AuthTokens)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}
		if tokens.Len() > 0 {
			resolver = tokens
			logger.Info("auth enabled", "tokens", tokens.Len())
		} else {
			logger.Warn("auth disabled (AGENTSMITH_AUTH_TOKENS not set)")
		}

		srv := server.New(st, server.Config{
			Bus:             eventBus,
			Publisher:       publisher,
			Transforms:      transform.NewRegistry(),
			Resolver:        resolver,
			PayloadMaxBytes: cfg.PayloadMaxBytes,
			AutoCreateRooms: cfg.AutoCreateRooms,
			PresenceWindow:  cfg.PresenceWindow,
			Stream: stream.Config{
				Heartbeat: cfg.HeartbeatInterval,
				Buffer:    cfg.StreamBuffer,
			},
			Logger: logger,
		})

		sw := sweeper.New(st, cfg.SweepInterval, logger)
		sw.OnSweep = metrics.ObserveSweep
		sw.Start()
		logger.Info("sweeper started", "interval", cfg.SweepInterval)

		scheduler := startArchive(cfg, st, logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var grpcStop func()
		if cfg.GRPCAddr != "" {
			grpcServer, hs := server.NewGRPCServer()
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				sw.Stop()
				publisher.Close()
				st.Close()
				return err
			}
			go srv.WatchHealth(ctx, hs, 5*time.Second)
			go func() {
				logger.Info("gRPC health server listening", "addr", cfg.GRPCAddr)
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
			grpcStop = grpcServer.GracefulStop
		}

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
			// Request contexts derive from ctx so cancel ends open streams.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("agentsmith server started",
			"http_addr", cfg.HTTPAddr,
			"grpc_addr", cfg.GRPCAddr,
			"auto_create_rooms", cfg.AutoCreateRooms,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		cancel()

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("archive scheduler stopped")
		}
		sw.Stop()
		logger.Info("sweeper stopped")

		if grpcStop != nil {
			grpcStop()
			logger.Info("gRPC server stopped")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// openStore connects to Postgres, or falls back to the in-memory store
// when no database is configured.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("AGENTSMITH_DATABASE_URL not set; using in-memory store, events will not survive restarts")
		return memstore.New(), nil
	}
	pg, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

// startArchive starts the snapshot scheduler when an interval and bucket
// are configured. It returns nil otherwise.
func startArchive(cfg *config.Config, st store.Store, logger *slog.Logger) *archive.Scheduler {
	if cfg.SnapshotInterval <= 0 || cfg.SnapshotS3Bucket == "" {
		return nil
	}
	dest, err := archive.NewS3Destination(
		context.Background(),
		cfg.SnapshotS3Bucket,
		cfg.SnapshotS3Key,
		cfg.SnapshotS3Region,
		cfg.SnapshotS3Endpoint,
	)
	if err != nil {
		logger.Error("failed to create S3 snapshot destination", "err", err)
		return nil
	}
	scheduler := archive.NewScheduler(st, []archive.Destination{dest}, cfg.SnapshotInterval, logger)
	scheduler.Start()
	logger.Info("archive scheduler started", "interval", cfg.SnapshotInterval, "destination", dest.String())
	return scheduler
}
