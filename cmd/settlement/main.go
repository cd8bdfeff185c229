// Package main запускает сервис расчётов по заказам билетов.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ticketing-settlement/internal/cache"
	"github.com/mmeshcher/ticketing-settlement/internal/config"
	"github.com/mmeshcher/ticketing-settlement/internal/gateway"
	"github.com/mmeshcher/ticketing-settlement/internal/handler"
	"github.com/mmeshcher/ticketing-settlement/internal/middleware"
	"github.com/mmeshcher/ticketing-settlement/internal/notify"
	"github.com/mmeshcher/ticketing-settlement/internal/repository"
	"github.com/mmeshcher/ticketing-settlement/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Sugar().Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURI)
	if err != nil {
		return fmt.Errorf("database initialization: %w", err)
	}

	opts := service.Options{
		Logger:               logger,
		RedirectURL:          cfg.PaymentRedirectURL,
		VerifyWebhooks:       cfg.VerifyWebhooks,
		PendingCheckInterval: cfg.PendingCheckInterval,
		PendingMinAge:        cfg.PendingMinAge,
	}

	if cfg.GatewayURL != "" {
		opts.Gateway = gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIUser, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	} else {
		sugar.Warn("payment gateway not configured, only cash orders are accepted")
	}

	if cfg.RedisAddress != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddress)
		if err != nil {
			return fmt.Errorf("redis initialization: %w", err)
		}
		defer rdb.Close()
		opts.Deduper = cache.NewWebhookCache(rdb, cfg.WebhookDedupTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				sugar.Warnw("close kafka publisher", "error", err)
			}
		}()
		opts.Publisher = publisher
	}

	svc := service.NewService(repo, opts)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, !cfg.Production())

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.RunPendingReconciliation(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting settlement server", "addr", cfg.RunAddress, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
