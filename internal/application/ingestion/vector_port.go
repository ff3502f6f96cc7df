package ingestion

import (
	"context"

	"dragons-codex/internal/domain/entity"
)

// VectorWriter 定义摄取侧对向量存储的最小依赖（port）
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorWriter interface {
	EnsureCollections(ctx context.Context) error
	UpsertChunks(ctx context.Context, collection string, records []*VectorRecord) error
}

// VectorRecord 一条待入库记录：chunk_id 作主键，相同 id 重复写入覆盖而非重复
type VectorRecord struct {
	Chunk  *entity.Chunk
	Vector []float32
}
