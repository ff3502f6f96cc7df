// Package main 检索 HTTP 服务入口
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

	"dragons-codex/internal/application/retrieval"
	"dragons-codex/internal/config"
	"dragons-codex/internal/infrastructure/embedding"
	"dragons-codex/internal/infrastructure/persistence/milvus"
	"dragons-codex/internal/infrastructure/persistence/redis"
	"dragons-codex/internal/interfaces/http/handler"
	"dragons-codex/internal/interfaces/http/middleware"
	"dragons-codex/internal/interfaces/http/router"
	"dragons-codex/pkg/logger"
	"dragons-codex/pkg/tracer"
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
	log.Info("starting retrieval-svc",
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
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Milvus 必需
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Fatal(ctx, "failed to init milvus", err)
	}
	defer func() { _ = milvusClient.Close() }()

	repo := milvus.NewRepository(
		milvusClient,
		cfg.Embedding.Dimension,
		cfg.Vector.Milvus.BooksCollection,
		cfg.Vector.Milvus.WikiCollection,
	)

	// Redis 可选：连不上只丢缓存和限流，不影响检索
	var (
		queryCache  retrieval.QueryCache
		limiter     middleware.RateLimiter
		redisClient *redis.Client
	)
	redisClient, err = redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		log.Warn("redis unavailable, query cache and rate limit disabled", "error", err)
	} else {
		defer func() { _ = redisClient.Close() }()
		queryCache = redis.NewCache(redisClient)
		limiter = redis.NewRateLimiter(redisClient)
	}

	embedder, err := embedding.NewEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init embedder", err)
	}

	engine := retrieval.NewEngine(embedder, repo, queryCache, retrieval.EngineOptions{
		BooksCollection: cfg.Vector.Milvus.BooksCollection,
		WikiCollection:  cfg.Vector.Milvus.WikiCollection,
		DefaultTopK:     cfg.Retrieval.DefaultTopK,
		MaxTopK:         cfg.Retrieval.MaxTopK,
		OverfetchFactor: cfg.Retrieval.OverfetchFactor,
		ScoreThreshold:  cfg.Retrieval.ScoreThreshold,
		CacheTTL:        cfg.Retrieval.CacheTTL,
	})
	assembler := retrieval.NewAssembler(cfg.Retrieval.ContextBudget)

	r := router.New(cfg,
		handler.NewHealthHandler(redisClient, milvusClient),
		handler.NewRetrievalHandler(engine, assembler),
		limiter,
	)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
