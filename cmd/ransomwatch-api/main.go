// Command ransomwatch-api serves IOC lookups over REST and gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/hive-corporation/ransomwatch/internal/adapter/handler"
	"github.com/hive-corporation/ransomwatch/internal/adapter/repository"
	"github.com/hive-corporation/ransomwatch/internal/config"
	"github.com/hive-corporation/ransomwatch/internal/core/ports"
	"github.com/hive-corporation/ransomwatch/internal/logging"
	"github.com/hive-corporation/ransomwatch/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ransomwatch-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer index.Close()

	metrics.InitMetrics()
	logger.Info("Prometheus metrics initialized")

	// HTTP router
	router := newRouter(index, cfg.RESTAuthToken, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.RESTPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC server, localhost only unless GRPC_LISTEN_ADDR says otherwise
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}
	grpcServer := newGRPCServer(index, logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("REST API listening", zap.String("port", cfg.RESTPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("REST server failed: %w", err)
		}
	}()
	go func() {
		logger.Info("gRPC API listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down servers")
	case err := <-errCh:
		logger.Error("Server error, shutting down", zap.Error(err))
		grpcServer.Stop()
		_ = srv.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Servers stopped gracefully")
	return nil
}

func openIndex(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.AdvisoryIndex, error) {
	if cfg.DBDriver == config.DriverPostgres {
		idx, err := repository.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	idx, err := repository.OpenSQLite(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func newRouter(index ports.AdvisoryIndex, authToken string, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	handler.NewRestHandler(index, logger).RegisterRoutes(router)

	// Metrics endpoint (requires authentication)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(handler.LoggingMiddleware(logger))
	router.Use(handler.AuthMiddleware(authToken, logger))
	return router
}

func newGRPCServer(index ports.AdvisoryIndex, logger *zap.Logger) *grpc.Server {
	s := grpc.NewServer()
	handler.RegisterLookupServer(s, handler.NewGrpcServer(index, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(handler.LookupServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)

	reflection.Register(s)
	return s
}
