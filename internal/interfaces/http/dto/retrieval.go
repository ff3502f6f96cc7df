// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"dragons-codex/internal/application/retrieval"
	"dragons-codex/internal/domain/entity"
)

// SearchRequest 检索请求
// MaxBook 为剧透边界（含该书），不传表示不限制。
type SearchRequest struct {
	Query            string  `json:"query" binding:"required,max=2000"`
	MaxBook          *int    `json:"max_book,omitempty"`
	TopK             int     `json:"top_k,omitempty"`
	ScoreThreshold   float64 `json:"score_threshold,omitempty"`
	IncludeEmbedding bool    `json:"include_embedding,omitempty"`
}

// ContextRequest 上下文装配请求
type ContextRequest struct {
	SearchRequest
	Budget int `json:"budget,omitempty"` // 上下文字符预算，0 取服务端默认
}

// ChunkResult 单条检索结果
type ChunkResult struct {
	ChunkID           string             `json:"chunk_id"`
	Source            string             `json:"source"`
	Text              string             `json:"text"`
	TemporalOrder     *int               `json:"temporal_order"`
	Score             float64            `json:"score"`
	Collection        string             `json:"collection"`
	CharacterMentions []string           `json:"character_mentions,omitempty"`
	ConceptMentions   []string           `json:"concept_mentions,omitempty"`
	MagicMentions     []string           `json:"magic_mentions,omitempty"`
	Book              *entity.BookFields `json:"book,omitempty"`
	Wiki              *entity.WikiFields `json:"wiki,omitempty"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Results        []*ChunkResult `json:"results"`
	Total          int            `json:"total"`
	FromCache      bool           `json:"from_cache,omitempty"`
	QueryEmbedding []float32      `json:"query_embedding,omitempty"`
	DurationMs     int64          `json:"duration_ms"`
}

// ContextResponse 上下文装配响应
type ContextResponse struct {
	Text       string   `json:"text"`
	ChunkIDs   []string `json:"chunk_ids"`
	Truncated  bool     `json:"truncated"`
	Degraded   string   `json:"degraded,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// NewChunkResult 从应用层结果构建 DTO
func NewChunkResult(sc retrieval.ScoredChunk) *ChunkResult {
	c := sc.Chunk
	return &ChunkResult{
		ChunkID:           c.ChunkID,
		Source:            string(c.Source),
		Text:              c.Text,
		TemporalOrder:     c.TemporalOrder,
		Score:             sc.Score,
		Collection:        sc.Collection,
		CharacterMentions: c.CharacterMentions,
		ConceptMentions:   c.ConceptMentions,
		MagicMentions:     c.MagicMentions,
		Book:              c.Book,
		Wiki:              c.Wiki,
	}
}

// NewSearchResponse 从检索输出构建响应
func NewSearchResponse(out *retrieval.SearchOutput, durationMs int64) *SearchResponse {
	results := make([]*ChunkResult, 0, len(out.Results))
	for _, sc := range out.Results {
		results = append(results, NewChunkResult(sc))
	}
	return &SearchResponse{
		Results:        results,
		Total:          len(results),
		FromCache:      out.FromCache,
		QueryEmbedding: out.QueryEmbedding,
		DurationMs:     durationMs,
	}
}
