// Package main 引文检索服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shakespeare-quote-api/internal/application/ingest"
	"shakespeare-quote-api/internal/application/quote"
	"shakespeare-quote-api/internal/application/session"
	"shakespeare-quote-api/internal/config"
	"shakespeare-quote-api/internal/infrastructure/embedding"
	"shakespeare-quote-api/internal/infrastructure/persistence/milvus"
	"shakespeare-quote-api/internal/infrastructure/persistence/redis"
	"shakespeare-quote-api/internal/interfaces/http/handler"
	"shakespeare-quote-api/internal/interfaces/http/router"
	"shakespeare-quote-api/pkg/logger"
	"shakespeare-quote-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting quote-svc",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Milvus（必需）
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Fatal(ctx, "failed to connect to milvus", err)
	}
	defer milvusClient.Close()

	repo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	if err := repo.EnsureFragmentsCollection(ctx); err != nil {
		logger.Fatal(ctx, "failed to ensure fragments collection", err)
	}
	store := milvus.NewFragmentStoreAdapter(repo)

	// Redis（可选：查询向量缓存 + 会话存储）
	var redisClient *redis.Client
	if cfg.Cache.Redis.Enabled {
		redisClient, err = redis.NewClient(&cfg.Cache.Redis)
		if err != nil {
			logger.Fatal(ctx, "failed to connect to redis", err)
		}
		defer redisClient.Close()
	}

	// Embedding 客户端，Redis 可用时加查询向量缓存
	var embedder quote.Embedder
	embedClient := embedding.NewClient(&cfg.Embedding)
	embedder = embedClient
	if redisClient != nil {
		embedder = embedding.NewCachedEmbedder(
			embedClient,
			redis.NewCache(redisClient),
			embedClient.Model(),
			cfg.Embedding.CacheTTL,
		)
	}

	// 会话存储
	var sessionStore session.Store
	switch cfg.Session.Store {
	case "redis":
		if redisClient == nil {
			logger.Fatal(ctx, "session store is redis but redis is disabled", nil)
		}
		sessionStore = redis.NewSessionStore(redisClient, cfg.Session.RedisTTL)
	default:
		sessionStore = session.NewFileStore(cfg.Session.FileDir)
	}

	tracker := session.NewTracker("")
	log.Info("session started", "session_id", tracker.ID())

	engine := quote.NewEngine(store, embedder, tracker, quote.Options{
		OverfetchMultiplier: cfg.Retrieval.OverfetchMultiplier,
		DefaultMaxResults:   cfg.Retrieval.DefaultMaxResults,
		MaxResultsLimit:     cfg.Retrieval.MaxResultsLimit,
	})
	ingestor := ingest.NewIngestor(store, embedder, cfg.Embedding.BatchSize)

	r := router.New(cfg, router.Handlers{
		Health:  handler.NewHealthHandler(milvusClient, redisClient),
		Quote:   handler.NewQuoteHandler(engine, store, ingestor),
		Session: handler.NewSessionHandler(tracker, sessionStore),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 退出前持久化当前会话
	if err := tracker.Persist(ctx, sessionStore); err != nil {
		log.Warn("failed to persist session on shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
