package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/stockroom/internal/adapter/broadcast"
	"github.com/rl1809/stockroom/internal/adapter/handler"
	"github.com/rl1809/stockroom/internal/adapter/qrcode"
	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/logging"
	"github.com/rl1809/stockroom/internal/port"
)

var topics = []string{
	port.TopicTelemetryNew,
	port.TopicScanCorrelated,
	port.TopicInventoryChanged,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg.Storage)
	defer closeStore()

	// Initialize fan-out
	hub := broadcast.NewHub(cfg.Broadcast.SubscriberBuffer)
	var (
		sinks []port.Sink
		relay *storage.RedisAdapter
		rdb   *redis.Client
	)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		relay = storage.NewRedisAdapter(rdb)
		if err := relay.Ping(ctx); err != nil {
			logging.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect redis")
		}
		logging.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis, relaying fan-out")
		sinks = append(sinks, relay)
	} else {
		sinks = append(sinks, hub)
	}

	dispatcher := broadcast.NewDispatcher(cfg.Broadcast.QueueSize, cfg.Broadcast.Workers, sinks...)
	dispatcher.Start()

	// Initialize services
	decoder := service.NewDecodePipeline(qrcode.NewReader(), cfg.Scan.MaxPixels)
	telemetrySvc := service.NewTelemetryService(store, dispatcher, cfg.History.ScanLimit)
	inventorySvc := service.NewInventoryService(store, dispatcher)
	correlationSvc := service.NewCorrelationService(store, dispatcher, decoder, cfg.Scan.DefaultLabel, cfg.Scan.UnknownLabel)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	grpcHandler := handler.NewGRPCHandler(store)
	grpcHandler.Register(grpcServer)
	grpcHandler.Refresh(ctx)

	// Initialize HTTP server
	rateLimit := 0
	if cfg.RateLimit.Enabled {
		rateLimit = cfg.RateLimit.Requests
	}
	httpHandler := handler.NewHTTPHandler(telemetrySvc, inventorySvc, correlationSvc, store, hub, handler.Options{
		CORSOrigins:   cfg.Server.CORSOrigins,
		Gate:          handler.TokenGate(cfg.Server.APIToken),
		RateLimit:     rateLimit,
		RateWindow:    cfg.RateLimit.Window,
		MaxImageBytes: cfg.Scan.MaxImageBytes,
		History: domain.HistoryQuery{
			Lookback:  cfg.History.Lookback,
			MinGap:    cfg.History.MinGap,
			MaxPoints: cfg.History.MaxPoints,
		},
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpHandler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		logging.Info().Str("addr", cfg.GRPC.Addr).Msg("gRPC server listening")
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logging.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			err := relay.Subscribe(gctx, topics, func(env port.Envelope) {
				_ = hub.Deliver(gctx, env)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logging.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("HTTP shutdown failed")
		}
		logging.Info().Msg("HTTP server stopped")

		grpcHandler.Shutdown()
		grpcServer.GracefulStop()
		logging.Info().Msg("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
	}

	// Drain queued events, then drop observers
	dispatcher.Close()
	hub.Close()
	if rdb != nil {
		_ = rdb.Close()
	}
	logging.Info().Msg("connections closed")
}

// openStore returns the configured ledger store and its cleanup.
func openStore(ctx context.Context, cfg config.StorageConfig) (port.LedgerStore, func()) {
	if cfg.Driver == config.DriverMemory {
		logging.Warn().Msg("using in-memory ledger store, data is lost on exit")
		return storage.NewMemoryAdapter(), func() {}
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logging.Fatal().Err(err).Msg("failed to ping mysql")
	}
	logging.Info().Msg("connected to mysql")

	adapter := storage.NewMySQLAdapter(db)
	if cfg.Migrate {
		if err := adapter.Migrate(ctx); err != nil {
			logging.Fatal().Err(err).Msg("failed to migrate schema")
		}
		logging.Info().Msg("schema migrated")
	}
	return adapter, func() { _ = db.Close() }
}
