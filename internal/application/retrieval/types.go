package retrieval

import (
	"dragons-codex/internal/domain/entity"
)

// SearchInput 检索输入
// MaxBook 为剧透边界（含），nil 表示不做时间线过滤。
type SearchInput struct {
	Query   string
	MaxBook *int
	TopK    int

	// ScoreThreshold 覆盖引擎默认相似度阈值（<=0 时使用默认）
	ScoreThreshold float64

	IncludeEmbedding bool
}

// ScoredChunk 一条带相似度的检索结果
type ScoredChunk struct {
	Chunk      *entity.Chunk `json:"chunk"`
	Score      float64       `json:"score"`
	Collection string        `json:"collection"`
}

// SearchOutput 检索输出
type SearchOutput struct {
	Results []ScoredChunk `json:"results"`

	QueryEmbedding []float32 `json:"query_embedding,omitempty"`
	FromCache      bool      `json:"from_cache,omitempty"`
}

// ContextResult 上下文装配结果
// Degraded 非空表示检索层降级，上游不得当作正常空结果处理。
type ContextResult struct {
	Text      string   `json:"text"`
	ChunkIDs  []string `json:"chunk_ids"`
	Truncated bool     `json:"truncated"`
	Degraded  string   `json:"degraded,omitempty"`
}
