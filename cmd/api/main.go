package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/database"
	"docqa/internal/database/migration"
	handlers "docqa/internal/http/handler"
	"docqa/internal/http/middleware"
	"docqa/internal/ingest"
	"docqa/internal/llm"
	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/otel"
	"docqa/internal/qa"
	"docqa/internal/repository/postgres"
	"docqa/internal/service"
	"docqa/internal/storage"
	"docqa/internal/vectorstore"
)

const shutdownTimeout = 15 * time.Second

// @title Document QA API
// @version 1.0
// @description Upload documents and ask questions answered from their content.
// @BasePath /
func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.Location())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer flush(log, "tracer provider", shutdownTracing)

	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	objStore, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	provider, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	index, err := vectorstore.Open(vectorstore.Options{
		Path:   cfg.Index.Path,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			log.Error("close vector index", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if _, err := metrics.RegisterIndexSize(reg, index.Count); err != nil {
		return fmt.Errorf("register index metrics: %w", err)
	}

	pipeline, err := ingest.New(index, provider.Embedder, cfg.Ingest,
		ingest.WithLogger(log),
		ingest.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("init ingest pipeline: %w", err)
	}
	defer pipeline.Release()

	qaOpts := []qa.Option{qa.WithLogger(log), qa.WithMetrics(m)}
	if cfg.Cache.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("answer cache disabled", zap.String("addr", cfg.Cache.Addr), zap.Error(err))
		} else {
			qaOpts = append(qaOpts, qa.WithCache(qa.NewRedisCache(rdb, cfg.Cache.TTL)))
			log.Info("answer cache enabled", zap.String("addr", cfg.Cache.Addr), zap.Duration("ttl", cfg.Cache.TTL))
		}
	}
	retriever := vectorstore.NewRetriever(index, provider.Embedder, cfg.Index.TopK)
	answerer := qa.NewAnswerer(provider.Model, retriever, index, qaOpts...)

	docRepo := postgres.NewDocumentPostgres(db)
	docSvc := service.NewDocumentService(objStore, docRepo, pipeline, index, cfg.Ingest.Overwrite, log)
	querySvc := service.NewQueryService(answerer)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    cfg.MaxUploadMB << 20,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		// Answers can take a while on large contexts.
		ReadTimeout:           time.Minute,
		DisableStartupMessage: true,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg, "/healthz")
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware(otelfiber.WithServerName(cfg.AppHost)))
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: strings.Join([]string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, middleware.RequestIDHeader}, ","),
	}))

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:       db,
		Docs:     docSvc,
		Query:    querySvc,
		Gatherer: reg,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server listening",
			zap.String("addr", addr),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("storage", cfg.Storage.Backend),
			zap.Int("indexed_chunks", index.Count()),
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	return nil
}

func flush(log *zap.Logger, name string, fn otel.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("shutdown "+name, zap.Error(err))
	}
}
