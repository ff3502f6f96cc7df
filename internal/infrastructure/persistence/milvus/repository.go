// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"time"

	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dragons-codex/internal/application/ingestion"
	"dragons-codex/internal/application/retrieval"
	"dragons-codex/pkg/logger"
	"dragons-codex/pkg/metrics"
)

const searchEf = 128

// Repository 块向量仓储，同时服务摄取写入与检索查询
type Repository struct {
	client *Client
	dim    int
	books  string
	wiki   string
}

var (
	_ ingestion.VectorWriter   = (*Repository)(nil)
	_ retrieval.VectorSearcher = (*Repository)(nil)
)

// NewRepository 创建块向量仓储
// dim 必须与 embedding 模型输出维度一致，否则写入时 Milvus 会拒绝。
func NewRepository(client *Client, dim int, booksCollection, wikiCollection string) *Repository {
	if booksCollection == "" {
		booksCollection = "books"
	}
	if wikiCollection == "" {
		wikiCollection = "wiki"
	}
	return &Repository{
		client: client,
		dim:    dim,
		books:  booksCollection,
		wiki:   wikiCollection,
	}
}

// EnsureCollections 确保两个块集合与索引可用（不存在则创建）
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureCollections(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	for _, name := range []string{r.books, r.wiki} {
		if err := r.ensureCollection(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) ensureCollection(ctx context.Context, name string) error {
	exists, err := r.client.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.createCollection(ctx, name); err != nil {
			return err
		}
		if err := r.createIndex(ctx, name); err != nil {
			return err
		}
	}
	return r.client.LoadCollection(ctx, name)
}

func (r *Repository) createCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	schema := ChunkSchema(name, r.dim)
	if err := r.client.milvus.CreateCollection(ctx, schema, milvusentity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// createIndex 创建 HNSW 索引
func (r *Repository) createIndex(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	idx, err := milvusentity.NewIndexHNSW(
		milvusentity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, name, fieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// UpsertChunks 以 chunk_id 为主键写入，重复摄取覆盖而非累积
func (r *Repository) UpsertChunks(ctx context.Context, collection string, records []*ingestion.VectorRecord) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	if len(records) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "milvus.UpsertChunks",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(records)),
		))
	defer span.End()

	ids := make([]string, 0, len(records))
	vectors := make([][]float32, 0, len(records))
	sources := make([]string, 0, len(records))
	temporals := make([]int64, 0, len(records))
	hashes := make([]string, 0, len(records))
	payloads := make([]string, 0, len(records))

	for _, rec := range records {
		if rec == nil || rec.Chunk == nil {
			continue
		}
		payload, err := encodePayload(rec.Chunk)
		if err != nil {
			span.RecordError(err)
			return err
		}
		ids = append(ids, rec.Chunk.ChunkID)
		vectors = append(vectors, rec.Vector)
		sources = append(sources, string(rec.Chunk.Source))
		temporals = append(temporals, temporalValue(rec.Chunk.TemporalOrder))
		hashes = append(hashes, rec.Chunk.ContentHash)
		payloads = append(payloads, payload)
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := r.client.milvus.Upsert(ctx, collection, "",
		milvusentity.NewColumnVarChar(fieldChunkID, ids),
		milvusentity.NewColumnFloatVector(fieldVector, r.dim, vectors),
		milvusentity.NewColumnVarChar(fieldSource, sources),
		milvusentity.NewColumnInt64(fieldTemporalOrder, temporals),
		milvusentity.NewColumnVarChar(fieldContentHash, hashes),
		milvusentity.NewColumnVarChar(fieldPayload, payloads),
	)
	if err != nil {
		span.RecordError(err)
		metrics.MilvusUpsertTotal.WithLabelValues(collection, "error").Inc()
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	metrics.MilvusUpsertTotal.WithLabelValues(collection, "success").Inc()
	return nil
}

// SearchChunks 单集合 ANN 查询，剧透边界下推为标量过滤表达式
// 瞬时失败重试一次后上抛。
func (r *Repository) SearchChunks(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorSearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if params == nil {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "milvus.SearchChunks",
		trace.WithAttributes(
			attribute.String("collection", params.Collection),
			attribute.Int("top_k", params.TopK),
		))
	defer span.End()

	out, err := r.searchOnce(ctx, params)
	if err != nil {
		logger.Warn(ctx, "milvus search failed, retrying once",
			"collection", params.Collection, "error", err.Error())
		time.Sleep(100 * time.Millisecond)
		out, err = r.searchOnce(ctx, params)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func (r *Repository) searchOnce(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorSearchResult, error) {
	sp, err := milvusentity.NewIndexHNSWSearchParam(searchEf)
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		params.Collection,
		nil,
		boundaryExpr(params.MaxBook),
		[]string{fieldChunkID, fieldTemporalOrder, fieldPayload},
		[]milvusentity.Vector{milvusentity.FloatVector(params.QueryVector)},
		fieldVector,
		milvusentity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []*retrieval.VectorSearchResult
	for _, result := range results {
		payloadCol, _ := result.Fields.GetColumn(fieldPayload).(*milvusentity.ColumnVarChar)
		temporalCol, _ := result.Fields.GetColumn(fieldTemporalOrder).(*milvusentity.ColumnInt64)
		if payloadCol == nil || temporalCol == nil {
			continue
		}
		for i := 0; i < result.ResultCount; i++ {
			chunk, err := decodePayload(payloadCol.Data()[i], temporalCol.Data()[i])
			if err != nil {
				// 坏 payload 跳过并记录，不拖垮整次查询
				logger.Warn(ctx, "skip undecodable chunk payload",
					"collection", params.Collection, "error", err.Error())
				continue
			}
			out = append(out, &retrieval.VectorSearchResult{
				Chunk: chunk,
				// COSINE 下 Milvus 返回相似度，统一转为距离
				Distance: 1 - result.Scores[i],
			})
		}
	}
	return out, nil
}
