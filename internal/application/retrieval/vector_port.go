package retrieval

import (
	"context"
	"time"

	"dragons-codex/internal/domain/entity"
)

// VectorSearcher 定义检索侧对向量存储的最小依赖（port）
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorSearcher interface {
	EnsureCollections(ctx context.Context) error
	SearchChunks(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
}

// VectorSearchParams 单集合 ANN 查询参数
// MaxBook 下推到存储层做粗过滤，最终裁决仍在引擎内完成。
type VectorSearchParams struct {
	Collection  string
	QueryVector []float32
	TopK        int
	MaxBook     *int
}

// VectorSearchResult 一条命中，Distance 为存储层返回的原始距离（COSINE: 1-cos）
type VectorSearchResult struct {
	Chunk    *entity.Chunk
	Distance float32
}

// QueryCache 查询结果缓存（port），由 Redis 实现
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}
