package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"paygate/internal/callback"
	"paygate/internal/config"
	"paygate/internal/db"
	"paygate/internal/gateway"
	"paygate/internal/logger"
	"paygate/internal/metrics"
	"paygate/internal/middleware"
	"paygate/internal/transaction"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	if err := logger.Init(cfg.AppEnv, cfg.LogLevel); err != nil {
		logger.L().Fatal("Logger not initialized", zap.Error(err))
	}
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewLimiter(cfg.CallbackRate, cfg.CallbackBurst)
	go limiter.Cleanup(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           setupRouter(cfg, database, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.L().Info("Payment gateway listening",
			zap.String("port", cfg.AppPort),
			zap.String("default_driver", cfg.DefaultDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("Server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Error("Graceful shutdown failed", zap.Error(err))
	}
}

func setupRouter(cfg *config.Config, database *sql.DB, limiter *middleware.Limiter) http.Handler {
	registry := gateway.DefaultRegistry()
	logger.L().Info("Payment drivers registered", zap.Strings("drivers", registry.Names()))

	repo := transaction.NewRepository(database)
	manager := gateway.NewManager(gateway.Config{
		DefaultDriver: cfg.DefaultDriver,
		Drivers:       cfg.Drivers,
		Metrics:       metrics.NewSet(),
	}, registry, repo)

	h := callback.NewHandler(manager, repo, database.PingContext)
	return callback.NewRouter(h, callback.RouterConfig{
		JWTSecret:       cfg.JWTSecret,
		CallbackLimiter: limiter,
		Metrics:         manager.Metrics(),
	})
}
