package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/spotexchange/internal/api"
	"github.com/xtrntr/spotexchange/internal/auth"
	"github.com/xtrntr/spotexchange/internal/config"
	"github.com/xtrntr/spotexchange/internal/db"
	"github.com/xtrntr/spotexchange/internal/exchange"
	"github.com/xtrntr/spotexchange/internal/logging"
	"github.com/xtrntr/spotexchange/internal/memdb"
	"github.com/xtrntr/spotexchange/internal/notify"

	"go.uber.org/zap"
)

type backend interface {
	exchange.Store
	auth.UserStore
}

// Main entry point: sets up storage, exchange, notifications and HTTP server
func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store backend
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store, state is lost on exit")
		if cfg.InsecureSecret() {
			logger.Warn("signing tokens with the default jwt_secret, set EXCHANGE_JWT_SECRET")
		}
		store = memdb.New()
	default:
		database, err := db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer database.Close(context.Background())
		if err := database.Pool.Ping(ctx); err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		store = database
	}

	// Notification sinks: websocket always, redis and kafka when configured
	hub := notify.NewHub(logger.Named("ws"))
	defer hub.Close()
	sinks := notify.Multi{hub}

	if cfg.RedisAddr != "" {
		client := notify.NewRedisClient(cfg.RedisAddr)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, events will be dropped until it recovers", zap.Error(err))
		}
		sinks = append(sinks, notify.NewRedisPublisher(client, cfg.RedisPrefix))
		logger.Info("publishing events to redis", zap.String("addr", cfg.RedisAddr))
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		sinks = append(sinks, producer)
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	rate, err := cfg.Commission()
	if err != nil {
		logger.Fatal("invalid commission rate", zap.Error(err))
	}

	ex := exchange.NewExchange(store, sinks, exchange.Options{
		Symbols:        cfg.Symbols,
		CommissionRate: rate,
		NotifyTimeout:  cfg.NotifyTimeout,
		Logger:         logger.Named("exchange"),
	})
	authService := auth.NewAuthService(store, cfg.JWTSecret, cfg.JWTTTL)
	handler := api.NewHandler(ex, authService, hub, logger.Named("api"))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store), zap.Strings("symbols", cfg.Symbols))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
