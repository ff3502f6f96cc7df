package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragons-codex/internal/domain/entity"
)

func scoredBook(book, chapter, idx int, text string, score float64) ScoredChunk {
	c := entity.NewBookChunk(book, chapter, idx, "C", entity.SectionChapter, text)
	return ScoredChunk{Chunk: c, Score: score, Collection: "books"}
}

func scoredWiki(page string, section, idx int, text string, score float64) ScoredChunk {
	c := entity.NewWikiChunk(page, section, idx, entity.WikiCharacter, page, "Overview", text, nil)
	return ScoredChunk{Chunk: c, Score: score, Collection: "wiki"}
}

func TestAssembleOrdersWithinLineage(t *testing.T) {
	// 同一章的两块按相关性倒序进入，装配后应恢复原文顺序
	results := []ScoredChunk{
		scoredBook(1, 4, 2, "later passage", 0.95),
		scoredBook(1, 4, 0, "earlier passage", 0.90),
	}
	out := NewAssembler(0).Assemble(results, "")

	require.Equal(t, []string{
		"book_01_ch_04_chunk_000",
		"book_01_ch_04_chunk_002",
	}, out.ChunkIDs)
	assert.Less(t, strings.Index(out.Text, "earlier passage"), strings.Index(out.Text, "later passage"))
	assert.False(t, out.Truncated)
}

func TestAssembleGroupsByBestRank(t *testing.T) {
	results := []ScoredChunk{
		scoredWiki("Egwene", 1, 0, "wiki section", 0.97),
		scoredBook(2, 7, 1, "chapter body", 0.93),
		scoredBook(2, 7, 0, "chapter opening", 0.80),
	}
	out := NewAssembler(0).Assemble(results, "")

	// 维基组排名最高在前，书籍组内部按块序
	require.Equal(t, []string{
		"wiki_egwene_sec_01_chunk_000",
		"book_02_ch_07_chunk_000",
		"book_02_ch_07_chunk_001",
	}, out.ChunkIDs)
}

func TestAssembleBudgetSkipsOverflow(t *testing.T) {
	big := strings.Repeat("a", 60)
	small := strings.Repeat("b", 20)
	results := []ScoredChunk{
		scoredBook(1, 1, 0, big, 0.99),
		scoredBook(3, 1, 0, big, 0.98), // 放不下，跳过
		scoredBook(4, 1, 0, small, 0.97),
	}
	out := NewAssembler(90).Assemble(results, "")

	assert.True(t, out.Truncated)
	require.Len(t, out.ChunkIDs, 2)
	assert.Contains(t, out.ChunkIDs, "book_01_ch_01_chunk_000")
	assert.Contains(t, out.ChunkIDs, "book_04_ch_01_chunk_000")
	assert.LessOrEqual(t, len(out.Text), 90)
}

func TestAssembleSingleOversizedChunk(t *testing.T) {
	text := strings.Repeat("x", 200)
	out := NewAssembler(50).Assemble([]ScoredChunk{scoredBook(1, 1, 0, text, 0.9)}, "")

	assert.True(t, out.Truncated)
	assert.Len(t, out.Text, 50)
	assert.Equal(t, []string{"book_01_ch_01_chunk_000"}, out.ChunkIDs)
}

func TestAssembleTruncatesAtRuneBoundary(t *testing.T) {
	// 弯引号是三字节字符，预算 50 落在字符中间时要回退到边界
	text := strings.Repeat("“quoted”", 30)
	out := NewAssembler(50).Assemble([]ScoredChunk{scoredBook(1, 1, 0, text, 0.9)}, "")

	assert.True(t, out.Truncated)
	assert.True(t, utf8.ValidString(out.Text))
	assert.LessOrEqual(t, len(out.Text), 50)
	assert.NotEmpty(t, out.Text)
}

func TestAssembleEmptyResults(t *testing.T) {
	out := NewAssembler(0).Assemble(nil, "")
	assert.Empty(t, out.Text)
	assert.Empty(t, out.ChunkIDs)
	assert.False(t, out.Truncated)
}

func TestAssembleDegradedPassthrough(t *testing.T) {
	out := NewAssembler(0).Assemble(nil, "vector store unavailable")
	assert.Equal(t, "vector store unavailable", out.Degraded)
}
