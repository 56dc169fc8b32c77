package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stockroom/internal/adapter/handler"
	"github.com/rl1809/stockroom/internal/adapter/messaging"
	"github.com/rl1809/stockroom/internal/adapter/metrics"
	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/platform/observability"
	"github.com/rl1809/stockroom/internal/port"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, config.ServiceName)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, config.ServiceName)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Initialize store
	store, closeStore := openStore(ctx, cfg, logger)

	recorder := metrics.NewRecorder()
	opts := service.Options{Metrics: recorder, Logger: logger}

	// Initialize Redis
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		opts.Cache = storage.NewRedisAdapter(rdb)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	// Initialize Kafka
	var publisher *messaging.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		opts.Publisher = publisher
		logger.Info("publishing stock events",
			zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// Initialize services
	inventory := service.NewInventoryService(store, opts)
	facilities := service.NewFacilityService(store, cfg.DeletePolicy, opts)
	catalog := service.NewCatalogService(store, opts)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogger(logger)))
	handler.RegisterInventoryServer(grpcServer, handler.NewGRPCHandler(inventory, facilities, catalog))

	// Start gRPC server
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(inventory, facilities, catalog, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpHandler.Routes(recorder.Handler()),
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Close connections
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("close kafka writer", zap.Error(err))
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	closeStore()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("flush traces", zap.Error(err))
	}
	logger.Info("connections closed")
}

// openStore returns the configured repository and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.DatabaseRepository, func()) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store; data is lost on exit")
		return storage.NewMemoryStore(), func() {}
	}

	store, err := storage.OpenSQLStore(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	logger.Info("connected to database", zap.String("driver", store.Dialect().Name))
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close database", zap.Error(err))
		}
	}
}
