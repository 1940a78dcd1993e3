package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lumixions/flutter-marketplace/internal/cache"
	"github.com/Lumixions/flutter-marketplace/internal/config"
	h "github.com/Lumixions/flutter-marketplace/internal/http"
	"github.com/Lumixions/flutter-marketplace/internal/payment"
	"github.com/Lumixions/flutter-marketplace/internal/repository"
	"github.com/Lumixions/flutter-marketplace/internal/service"
	"github.com/Lumixions/flutter-marketplace/internal/storage"
	"github.com/Lumixions/flutter-marketplace/pkg/logger"
	"github.com/Lumixions/flutter-marketplace/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("marketplace api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	logCfg.FilePath = cfg.Log.File
	log, closer, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	productCache, closeCache := openCache(cfg, log)
	defer closeCache()

	var paymentHandler *service.PaymentHandler
	if cfg.Stripe.SecretKey != "" {
		processor := payment.NewStripeProcessor(payment.StripeOptions{
			SecretKey: cfg.Stripe.SecretKey,
			APIURL:    cfg.Stripe.APIURL,
			Logger:    log,
		})
		paymentHandler = service.NewPaymentHandler(processor, cfg.Stripe.Timeout, log)
	}
	if !cfg.Stripe.PaymentsConfigured() {
		log.Warn("checkout disabled: STRIPE_SECRET_KEY, STRIPE_SUCCESS_URL or STRIPE_CANCEL_URL missing")
	}

	var verifier service.NotificationVerifier
	if cfg.Stripe.WebhookSecret != "" {
		verifier = payment.NewStripeProcessor(payment.StripeOptions{
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Logger:        log,
		})
	} else {
		log.Warn("STRIPE_WEBHOOK_SECRET not set, webhooks will be refused")
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, authenticated routes will fail")
	}

	catalog := service.NewCatalogService(repo, productCache, log)
	orders := service.NewOrderService(repo, log)
	checkout := service.NewCheckoutService(repo, paymentHandler, service.RedirectURLs{
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
	}, log)
	webhooks := service.NewWebhookService(repo, verifier, productCache, log)

	urls := storage.NewURLResolver(cfg.S3Bucket, cfg.S3Region)
	m := metrics.New("marketplace")
	router := h.NewRouter(h.RouterConfig{
		Products:       h.NewProductHandler(catalog, urls, cfg.RequestTimeout),
		Seller:         h.NewSellerHandler(catalog, urls, cfg.RequestTimeout, cfg.MaxBodyBytes),
		Orders:         h.NewOrdersHandler(orders, checkout, m, cfg.RequestTimeout, cfg.MaxBodyBytes),
		Webhooks:       h.NewWebhookHandler(webhooks, m, cfg.MaxBodyBytes),
		Auth:           h.NewJWTAuthenticator(cfg.JWTSecret),
		Health:         repo,
		Metrics:        m,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
		AllowOrigins:   cfg.AllowOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("marketplace api starting", "port", cfg.HTTPPort, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}

func openStore(cfg *config.Config) (repository.RepoInterface, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	creds := &repository.Credentials{
		Host:              cfg.DB.Host,
		Port:              cfg.DB.Port,
		User:              cfg.DB.User,
		Password:          cfg.DB.Password,
		DBName:            cfg.DB.Name,
		MigrationsDirPath: cfg.DB.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.RunMigrations(creds); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrations completed")
	return repo, nil
}

// openCache returns a no-op cache when Redis is not configured or unreachable.
func openCache(cfg *config.Config, log *slog.Logger) (cache.ProductCache, func()) {
	if cfg.RedisAddr == "" {
		return cache.Nop{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, product cache disabled", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return cache.Nop{}, func() {}
	}

	log.Info("connected to redis", "addr", cfg.RedisAddr)
	return cache.NewRedisCache(client, cfg.CacheTTL), func() { _ = client.Close() }
}
