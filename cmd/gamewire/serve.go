package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gamewire/admin"
	"gamewire/codec"
	"gamewire/config"
	"gamewire/logging"
	"gamewire/middleware"
	"gamewire/registry"
	"gamewire/server"
	"gamewire/wire"
)

func serveCmd(configPath *string) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
				cfg.Server.Advertise = listen
			}
			logger, err := logging.Setup(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen")
	return cmd
}

func newWireRegistry(c config.WireConfig, logger *zap.Logger) *wire.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return wire.NewRegistry(wire.WithByteOrder(byteOrder(c.ByteOrder)), wire.WithLogger(logger.Named("wire")))
}

func newRegistry(c config.RegistryConfig, logger *zap.Logger) (registry.Registry, error) {
	if c.Kind == "etcd" {
		return registry.NewEtcdRegistry(c.Endpoints,
			registry.WithPrefix(c.Prefix),
			registry.WithDialTimeout(c.DialTimeout),
			registry.WithLogger(logger.Named("registry")))
	}
	return registry.NewMemoryRegistry(), nil
}

// serve runs the game server and the admin endpoints until ctx ends.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ct, err := codec.ParseCodecType(cfg.Server.Codec)
	if err != nil {
		return err
	}
	reg, err := newRegistry(cfg.Registry, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	srv := server.NewServer(
		server.WithServiceName(cfg.Server.Service),
		server.WithWireRegistry(newWireRegistry(cfg.Wire, logger)),
		server.WithCodec(ct),
		server.WithMaxBodySize(cfg.Limits.MaxBodyBytes),
		server.WithQueueSize(cfg.Server.QueueSize),
		server.WithIdleTimeout(cfg.Server.IdleTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
		server.WithWeight(cfg.Server.Weight),
		server.WithRegistryTTL(cfg.Registry.TTL),
		server.WithLogger(logger.Named("server")),
	)

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv.Use(middleware.LoggingMiddleware(logger.Named("handler")))
	srv.Use(middleware.NewMetrics(metricsReg, cfg.Metrics.Namespace).Middleware())
	srv.Use(middleware.TracingMiddleware())
	if cfg.Limits.RatePerSession > 0 {
		limiter := middleware.NewSessionRateLimiter(cfg.Limits.RatePerSession, cfg.Limits.Burst)
		srv.Use(limiter.Middleware())
		srv.OnClose(func(s *server.Session) { limiter.Forget(s.ID()) })
	}
	srv.Use(middleware.TimeOutMiddleware(cfg.Limits.RequestTimeout))

	if err := registerLobby(srv); err != nil {
		return err
	}

	var adminErrs <-chan error
	if cfg.Metrics.Enabled {
		httpSrv, errc := admin.Serve(cfg.Metrics.Listen, admin.Options{
			Source:   srv,
			Gatherer: metricsReg,
			Logger:   logger.Named("admin"),
		})
		adminErrs = errc
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
		logger.Info("admin listening", zap.String("addr", cfg.Metrics.Listen))
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve("tcp", cfg.Server.Listen, cfg.Server.Advertise, reg) }()

	select {
	case err := <-served:
		return err
	case err, ok := <-adminErrs:
		if ok {
			srv.Shutdown(cfg.Server.ShutdownTimeout)
			return fmt.Errorf("admin: %w", err)
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	start := time.Now()
	err = srv.Shutdown(cfg.Server.ShutdownTimeout)
	<-served
	logger.Info("shutdown complete", zap.Duration("took", time.Since(start)))
	return err
}
