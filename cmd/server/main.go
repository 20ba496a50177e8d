package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayush/receipt-tracker/backend/internal/analysis"
	"github.com/ayush/receipt-tracker/backend/internal/auth"
	"github.com/ayush/receipt-tracker/backend/internal/config"
	"github.com/ayush/receipt-tracker/backend/internal/logging"
	"github.com/ayush/receipt-tracker/backend/internal/receipt"
	"github.com/ayush/receipt-tracker/backend/internal/store"
	"github.com/ayush/receipt-tracker/backend/internal/warranty"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid config", err)
	}
	ctx := context.Background()

	// ── PostgreSQL ────────────────────────────────────────────
	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		fatal(logger, "postgres migrate", err)
	}
	pgPool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "postgres connect", err)
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)

	// ── Redis (rate limiting) ────────────────────────────────
	proxies, err := cfg.ProxyPrefixes()
	if err != nil {
		fatal(logger, "trusted proxies", err)
	}
	srv := &server{
		logger:         logger,
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: proxies,
		rateLimit:      cfg.RateLimitPerMinute,
	}
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			fatal(logger, "redis connect", err)
		}
		defer rdb.Close()
		srv.limiter = rdb
	} else {
		logger.Info("REDIS_ADDR not set, rate limiting disabled")
	}

	// ── MongoDB (extraction archive) ─────────────────────────
	opts := receipt.Options{AnalysisTimeout: cfg.AnalysisTimeout}
	if cfg.MongoURI != "" {
		mongoClient, err := store.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			fatal(logger, "mongo connect", err)
		}
		defer mongoClient.Disconnect(context.Background())
		opts.Extractions = store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
	} else {
		logger.Info("MONGO_URI not set, extraction archive disabled")
	}

	// ── MinIO (receipt images) ───────────────────────────────
	if cfg.MinioEndpoint != "" {
		minioStore, err := store.NewMinioStore(
			ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
		)
		if err != nil {
			fatal(logger, "minio connect", err)
		}
		opts.Images = minioStore
	} else {
		logger.Info("MINIO_ENDPOINT not set, receipt images stored inline")
	}

	// ── Analyzer ─────────────────────────────────────────────
	analyzer, err := analysis.New(ctx, cfg)
	if err != nil {
		fatal(logger, "receipt analyzer", err)
	}
	logger.Info("receipt analyzer ready", "provider", analyzer.Name())
	if cfg.AnalyzerProvider == config.ProviderGemini && cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, scans will fail until it is configured")
	}

	// ── Handlers ─────────────────────────────────────────────
	srv.authSvc = auth.NewService(pgStore, logger)
	srv.auth = auth.NewHandler(srv.authSvc, cfg.IsProduction(), logger)
	srv.receipts = receipt.NewHandler(pgStore, analyzer, opts, logger)
	srv.warranties = warranty.NewHandler(pgStore, cfg.WarrantiesEnabled, logger)

	// ── Server ───────────────────────────────────────────────
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      cfg.AnalysisTimeout + 30*time.Second,
	}

	go func() {
		logger.Info("backend listening", "addr", httpSrv.Addr, "environment", cfg.Environment)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
