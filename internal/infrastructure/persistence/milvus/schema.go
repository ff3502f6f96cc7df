// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"encoding/json"
	"fmt"
	"strconv"

	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"

	"dragons-codex/internal/domain/entity"
)

const (
	// TemporalNull 无时间归属块的哨兵值
	// Milvus 标量字段不支持 NULL，用 -1 表示"永远可见"。
	TemporalNull int64 = -1

	fieldChunkID       = "chunk_id"
	fieldVector        = "vector"
	fieldSource        = "source"
	fieldTemporalOrder = "temporal_order"
	fieldContentHash   = "content_hash"
	fieldPayload       = "payload"
)

// ChunkSchema 块集合 Schema，books 与 wiki 集合共用同一结构
func ChunkSchema(collection string, dim int) *milvusentity.Schema {
	return &milvusentity.Schema{
		CollectionName: collection,
		Description:    "Corpus chunks for spoiler-safe semantic search",
		Fields: []*milvusentity.Field{
			{
				Name:       fieldChunkID,
				DataType:   milvusentity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     fieldVector,
				DataType: milvusentity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     fieldSource,
				DataType: milvusentity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "16",
				},
			},
			{
				Name:     fieldTemporalOrder,
				DataType: milvusentity.FieldTypeInt64,
			},
			{
				Name:     fieldContentHash,
				DataType: milvusentity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     fieldPayload,
				DataType: milvusentity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// temporalValue 把可空书号映射为标量字段值
func temporalValue(order *int) int64 {
	if order == nil {
		return TemporalNull
	}
	return int64(*order)
}

// encodePayload 序列化完整块元数据，反查时无须二次查询
func encodePayload(c *entity.Chunk) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal chunk %s: %w", c.ChunkID, err)
	}
	return string(data), nil
}

// decodePayload 从 payload 字段还原块
// temporal_order 以标量列为准，防止 payload 与列漂移。
func decodePayload(raw string, temporalOrder int64) (*entity.Chunk, error) {
	var c entity.Chunk
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("unmarshal chunk payload: %w", err)
	}
	if temporalOrder == TemporalNull {
		c.TemporalOrder = nil
	} else {
		v := int(temporalOrder)
		c.TemporalOrder = &v
	}
	return &c, nil
}

// boundaryExpr 生成剧透边界过滤表达式，nil 返回空串（不过滤）
func boundaryExpr(maxBook *int) string {
	if maxBook == nil {
		return ""
	}
	return fmt.Sprintf("%s == %d || %s <= %d", fieldTemporalOrder, TemporalNull, fieldTemporalOrder, *maxBook)
}
