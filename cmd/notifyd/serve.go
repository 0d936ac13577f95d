package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/notify/internal/archive"
	"github.com/alfredjeanlab/notify/internal/cache"
	"github.com/alfredjeanlab/notify/internal/config"
	"github.com/alfredjeanlab/notify/internal/dispatch"
	"github.com/alfredjeanlab/notify/internal/events"
	"github.com/alfredjeanlab/notify/internal/ingress"
	"github.com/alfredjeanlab/notify/internal/notify"
	"github.com/alfredjeanlab/notify/internal/presence"
	"github.com/alfredjeanlab/notify/internal/server"
	"github.com/alfredjeanlab/notify/internal/store"
	"github.com/alfredjeanlab/notify/internal/store/memory"
	"github.com/alfredjeanlab/notify/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the notification server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an HTTP client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		// Unread cache.
		var unread cache.UnreadCache = cache.NoopCache{}
		if cfg.RedisAddr != "" {
			rc, err := cache.NewRedisCache(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL, logger)
			if err != nil {
				st.Close()
				return err
			}
			unread = rc
			logger.Info("unread cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		} else {
			logger.Info("unread cache disabled (NOTIFY_REDIS_ADDR not set)")
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				unread.Close()
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (NOTIFY_NATS_URL not set)")
		}

		// Create pipeline components.
		registry := presence.New(logger)
		dispatcher := dispatch.New(st, registry, unread, publisher, dispatch.Config{
			Workers:   cfg.DispatchWorkers,
			QueueSize: cfg.DispatchQueue,
		}, logger)
		dispatcher.Start(context.Background())
		svc := notify.New(st, dispatcher, unread, publisher, logger)

		// Start bus ingress.
		ingressCtx, ingressCancel := context.WithCancel(context.Background())
		var ingressWG sync.WaitGroup
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				logger.Error("failed to create NATS ingress subscriber", "err", err)
			} else {
				src := ingress.NewNATSSource(sub, svc, logger)
				ingressWG.Add(1)
				go func() {
					defer ingressWG.Done()
					if err := src.Run(ingressCtx); err != nil {
						logger.Error("NATS ingress error", "err", err)
					}
					sub.Close()
				}()
			}
		}
		if len(cfg.KafkaBrokers) > 0 {
			src := ingress.NewKafkaSource(ingress.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), svc, logger)
			ingressWG.Add(1)
			go func() {
				defer ingressWG.Done()
				if err := src.Run(ingressCtx); err != nil {
					logger.Error("kafka ingress error", "err", err)
				}
				src.Close()
			}()
			logger.Info("kafka ingress enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		}

		// Start archive scheduler if a destination is configured.
		var scheduler *archive.Scheduler
		if cfg.ArchiveInterval > 0 && cfg.ArchiveS3Bucket != "" {
			dest, err := archive.NewS3Destination(context.Background(), cfg.ArchiveS3Bucket, cfg.ArchiveS3Region, cfg.ArchiveS3Endpoint)
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				scheduler = archive.NewScheduler(st, []archive.Destination{dest}, cfg.ArchiveInterval, archive.Options{
					Prefix: cfg.ArchiveS3Prefix,
				}, logger)
				scheduler.Start()
				logger.Info("archive scheduler started", "interval", cfg.ArchiveInterval, "bucket", cfg.ArchiveS3Bucket)
			}
		}

		// Start gRPC listener.
		grpcServer, healthServer := server.NewGRPCServer(cfg.ServiceToken)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			ingressCancel()
			dispatcher.Stop()
			publisher.Close()
			unread.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Start HTTP server.
		notifyServer := server.NewNotifyServer(svc, registry, dispatcher, server.Options{
			JWTSecret:      cfg.JWTSecret,
			ServiceToken:   cfg.ServiceToken,
			AllowedOrigins: cfg.AllowedOrigins,
		}, logger)
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           notifyServer.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("notify server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"workers", cfg.DispatchWorkers,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown: stop intake first, then drain the pipeline.
		healthServer.Shutdown()

		ingressCancel()
		ingressWG.Wait()
		logger.Info("ingress stopped")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("archive scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		registry.Close()
		dispatcher.Stop()
		stats := dispatcher.Stats()
		logger.Info("dispatcher stopped", "persisted", stats.Persisted, "pushed", stats.Pushed, "shed", stats.Shed, "failed", stats.Failed)

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := unread.Close(); err != nil {
			logger.Error("error closing cache", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// openStore selects the message store from the database URL.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.UsesMemoryStore() {
		logger.Warn("using in-memory store; messages are lost on restart")
		return memory.New(), nil
	}
	st, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres")
	return st, nil
}

// newLogger builds the process logger from the configured format and level.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
