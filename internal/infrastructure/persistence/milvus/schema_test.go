package milvus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragons-codex/internal/domain/entity"
)

func TestTemporalValue(t *testing.T) {
	assert.Equal(t, TemporalNull, temporalValue(nil))
	v := 7
	assert.Equal(t, int64(7), temporalValue(&v))
	zero := 0
	assert.Equal(t, int64(0), temporalValue(&zero))
}

func TestBoundaryExpr(t *testing.T) {
	assert.Equal(t, "", boundaryExpr(nil))
	v := 3
	assert.Equal(t, "temporal_order == -1 || temporal_order <= 3", boundaryExpr(&v))
}

func TestPayloadRoundTrip(t *testing.T) {
	c := entity.NewBookChunk(2, 5, 1, "The Flame of Tar Valon", entity.SectionChapter, "some passage")
	c.SetMentions([]string{"Moiraine Damodred"}, nil, []string{"One Power"})

	raw, err := encodePayload(c)
	require.NoError(t, err)

	got, err := decodePayload(raw, temporalValue(c.TemporalOrder))
	require.NoError(t, err)
	assert.Equal(t, c.ChunkID, got.ChunkID)
	require.NotNil(t, got.TemporalOrder)
	assert.Equal(t, 2, *got.TemporalOrder)
	assert.Equal(t, []string{"Moiraine Damodred"}, got.CharacterMentions)
	require.NotNil(t, got.Book)
	assert.Equal(t, 5, got.Book.ChapterNumber)
}

func TestDecodePayloadScalarWins(t *testing.T) {
	c := entity.NewBookChunk(4, 1, 0, "C", entity.SectionChapter, "text")
	raw, err := encodePayload(c)
	require.NoError(t, err)

	// 标量列为准：即使 payload 带书号，哨兵值仍还原为 nil
	got, err := decodePayload(raw, TemporalNull)
	require.NoError(t, err)
	assert.Nil(t, got.TemporalOrder)
}

func TestChunkSchemaShape(t *testing.T) {
	s := ChunkSchema("books", 1536)
	assert.Equal(t, "books", s.CollectionName)
	require.Len(t, s.Fields, 6)
	assert.True(t, s.Fields[0].PrimaryKey)
	assert.Equal(t, "chunk_id", s.Fields[0].Name)
	assert.Equal(t, "1536", s.Fields[1].TypeParams["dim"])
}
