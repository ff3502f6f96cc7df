package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrVectorDisabled 表示向量索引能力未配置（Milvus 或 Embedder 不可用）。
	ErrVectorDisabled = errors.New("vector indexing is disabled")

	// ErrEmbeddingCount 表示 embedding 服务返回的向量数与输入不符。
	ErrEmbeddingCount = errors.New("embedding result count mismatch")
)

// ParseError 单文件结构损坏，跳过该文件但不中断批次
type ParseError struct {
	File   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.File, e.Reason)
}

// ChunkSizeViolation 强制切分后仍超出硬上限，仅该块失败
type ChunkSizeViolation struct {
	SectionTitle string
	ChunkIndex   int
	Size         int
	Max          int
}

func (e *ChunkSizeViolation) Error() string {
	return fmt.Sprintf("chunk %d of section %q is %d chars, exceeds max %d", e.ChunkIndex, e.SectionTitle, e.Size, e.Max)
}
