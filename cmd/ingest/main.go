// Package main 语料批量摄取入口
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"dragons-codex/internal/application/ingestion"
	"dragons-codex/internal/config"
	"dragons-codex/internal/domain/entity"
	"dragons-codex/internal/infrastructure/embedding"
	"dragons-codex/internal/infrastructure/persistence/milvus"
	"dragons-codex/internal/infrastructure/persistence/redis"
	apperrors "dragons-codex/pkg/errors"
	"dragons-codex/pkg/logger"
	"dragons-codex/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	var (
		booksDir    = flag.String("books", "", "books directory (overrides config)")
		wikiDir     = flag.String("wiki", "", "wiki directory (overrides config)")
		mentionsDir = flag.String("mentions", "", "mention index directory (overrides config)")
		source      = flag.String("source", "all", "which corpus to ingest: books, wiki, all")
	)
	flag.Parse()

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

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "ingest",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	if *booksDir == "" {
		*booksDir = cfg.Corpus.BooksDir
	}
	if *wikiDir == "" {
		*wikiDir = cfg.Corpus.WikiDir
	}
	if *mentionsDir == "" {
		*mentionsDir = cfg.Corpus.MentionIndexDir
	}

	mentionIndex, err := entity.LoadMentionIndex(*mentionsDir)
	if err != nil {
		logger.Fatal(ctx, "failed to load mention index",
			apperrors.Wrap(err, apperrors.CodeMentionIndexBad, "mention index load failed"))
	}

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

	embedder, err := embedding.NewEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init embedder", err)
	}

	indexer := ingestion.NewIndexer(embedder, repo, ingestion.IndexerOptions{
		BooksCollection:    cfg.Vector.Milvus.BooksCollection,
		WikiCollection:     cfg.Vector.Milvus.WikiCollection,
		EmbeddingBatchSize: cfg.Embedding.BatchSize,
		RetryLimit:         cfg.Ingestion.Indexing.RetryLimit,
		Backoff: ingestion.BackoffPolicy{
			Initial:    cfg.Ingestion.Indexing.RetryBackoff.Initial,
			Max:        cfg.Ingestion.Indexing.RetryBackoff.Max,
			Multiplier: cfg.Ingestion.Indexing.RetryBackoff.Multiplier,
		},
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
	})

	pipeline := ingestion.NewPipeline(
		ingestion.NewChunker(
			cfg.Ingestion.Chunking.TargetTokens,
			cfg.Ingestion.Chunking.MaxTokens,
			cfg.Ingestion.Chunking.CharsPerToken,
		),
		ingestion.NewEnricher(mentionIndex),
		indexer,
		cfg.Ingestion.Workers,
	)

	reports := map[string]*ingestion.PipelineReport{}

	if *source == "all" || *source == "books" {
		log.Info("ingesting books", "dir", *booksDir)
		report, err := pipeline.IngestBooks(ctx, *booksDir)
		if err != nil {
			logger.Fatal(ctx, "book ingestion failed", err)
		}
		reports["books"] = report
	}

	if *source == "all" || *source == "wiki" {
		log.Info("ingesting wiki", "dir", *wikiDir)
		report, err := pipeline.IngestWiki(ctx, *wikiDir)
		if err != nil {
			logger.Fatal(ctx, "wiki ingestion failed", err)
		}
		reports["wiki"] = report
	}

	if len(reports) == 0 {
		fmt.Printf("unknown source %q, expected books, wiki or all\n", *source)
		os.Exit(2)
	}

	// 语料变更后旧查询缓存必须作废
	if redisClient, err := redis.NewClient(&cfg.Cache.Redis); err == nil {
		defer func() { _ = redisClient.Close() }()
		if err := redis.NewCache(redisClient).InvalidateQueries(ctx); err != nil {
			log.Warn("failed to invalidate query cache",
				"error", apperrors.Wrap(err, apperrors.CodeCacheError, "query cache invalidation failed").Error())
		}
	} else {
		log.Warn("redis unavailable, query cache not invalidated", "error", err)
	}

	out, _ := json.MarshalIndent(reports, "", "  ")
	fmt.Println(string(out))

	for _, report := range reports {
		if len(report.Failed) > 0 || len(report.FailedFiles) > 0 {
			os.Exit(1)
		}
	}
}
