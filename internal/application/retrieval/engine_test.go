package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dragons-codex/internal/domain/entity"
	apperrors "dragons-codex/pkg/errors"
)

type stubEmbedder struct {
	calls int
	fail  bool
}

func (s *stubEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("embedder down")
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

type stubSearcher struct {
	mu         sync.Mutex
	hits       map[string][]*VectorSearchResult
	lastParams map[string]*VectorSearchParams
	failOn     string
	ensureErr  error
}

func newStubSearcher() *stubSearcher {
	return &stubSearcher{
		hits:       make(map[string][]*VectorSearchResult),
		lastParams: make(map[string]*VectorSearchParams),
	}
}

func (s *stubSearcher) EnsureCollections(_ context.Context) error { return s.ensureErr }

func (s *stubSearcher) SearchChunks(_ context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error) {
	s.mu.Lock()
	s.lastParams[params.Collection] = params
	s.mu.Unlock()
	if s.failOn == params.Collection {
		return nil, errors.New("milvus unavailable")
	}
	return s.hits[params.Collection], nil
}

type stubCache struct {
	data map[string][]byte
	sets int
}

func newStubCache() *stubCache { return &stubCache{data: make(map[string][]byte)} }

func (c *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (c *stubCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.sets++
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func bookHit(book, chapter, idx int, distance float32) *VectorSearchResult {
	c := entity.NewBookChunk(book, chapter, idx, "Test Chapter", entity.SectionChapter, fmt.Sprintf("book %d text %d", book, idx))
	return &VectorSearchResult{Chunk: c, Distance: distance}
}

func wikiHit(page string, section, idx int, temporal *int, distance float32) *VectorSearchResult {
	c := entity.NewWikiChunk(page, section, idx, entity.WikiCharacter, page, "In-Book", fmt.Sprintf("wiki %s text %d", page, idx), temporal)
	return &VectorSearchResult{Chunk: c, Distance: distance}
}

func intPtr(v int) *int { return &v }

func newTestEngine(searcher *stubSearcher, cache QueryCache) *Engine {
	return NewEngine(&stubEmbedder{}, searcher, cache, EngineOptions{
		BooksCollection: "books",
		WikiCollection:  "wiki",
		DefaultTopK:     10,
		MaxTopK:         50,
		OverfetchFactor: 3,
	})
}

func TestSearchMergesBothCollections(t *testing.T) {
	searcher := newStubSearcher()
	searcher.hits["books"] = []*VectorSearchResult{
		bookHit(1, 1, 0, 0.1), // score 0.9
		bookHit(1, 2, 0, 0.4), // score 0.6
	}
	searcher.hits["wiki"] = []*VectorSearchResult{
		wikiHit("Moiraine", 0, 0, nil, 0.2), // score 0.8
	}
	eng := newTestEngine(searcher, nil)

	out, err := eng.Search(context.Background(), SearchInput{Query: "the dragon reborn"})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "book_01_ch_01_chunk_000", out.Results[0].Chunk.ChunkID)
	assert.Equal(t, "wiki_moiraine_sec_00_chunk_000", out.Results[1].Chunk.ChunkID)
	assert.Equal(t, "book_01_ch_02_chunk_000", out.Results[2].Chunk.ChunkID)
	assert.InDelta(t, 0.9, out.Results[0].Score, 1e-6)
}

func TestSearchTieBreakPrefersBooks(t *testing.T) {
	searcher := newStubSearcher()
	searcher.hits["books"] = []*VectorSearchResult{bookHit(2, 3, 0, 0.25)}
	searcher.hits["wiki"] = []*VectorSearchResult{wikiHit("Rand", 0, 0, nil, 0.25)}
	eng := newTestEngine(searcher, nil)

	out, err := eng.Search(context.Background(), SearchInput{Query: "tie"})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, entity.SourceBook, out.Results[0].Chunk.Source)
	assert.Equal(t, entity.SourceWiki, out.Results[1].Chunk.Source)
}

func TestSearchSpoilerBoundary(t *testing.T) {
	searcher := newStubSearcher()
	searcher.hits["books"] = []*VectorSearchResult{
		bookHit(5, 1, 0, 0.05), // best hit, but past the boundary
		bookHit(3, 1, 0, 0.2),
		bookHit(1, 1, 0, 0.3),
	}
	searcher.hits["wiki"] = []*VectorSearchResult{
		wikiHit("Mat", 0, 0, intPtr(4), 0.1), // past the boundary
		wikiHit("Perrin", 0, 0, nil, 0.35),   // no temporal claim, always safe
	}
	eng := newTestEngine(searcher, nil)

	out, err := eng.Search(context.Background(), SearchInput{Query: "who dies", MaxBook: intPtr(3)})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	for _, r := range out.Results {
		if r.Chunk.TemporalOrder != nil {
			assert.LessOrEqual(t, *r.Chunk.TemporalOrder, 3,
				"chunk %s leaked past max_book", r.Chunk.ChunkID)
		}
	}
	assert.Equal(t, "book_03_ch_01_chunk_000", out.Results[0].Chunk.ChunkID)
}

func TestSearchBoundaryPushedToStore(t *testing.T) {
	searcher := newStubSearcher()
	eng := newTestEngine(searcher, nil)

	_, err := eng.Search(context.Background(), SearchInput{Query: "q", MaxBook: intPtr(7), TopK: 5})
	require.NoError(t, err)
	require.NotNil(t, searcher.lastParams["books"])
	require.NotNil(t, searcher.lastParams["books"].MaxBook)
	assert.Equal(t, 7, *searcher.lastParams["books"].MaxBook)
	// 过量召回至少 2 倍 topK
	assert.GreaterOrEqual(t, searcher.lastParams["books"].TopK, 10)
}

func TestSearchDedupesByChunkID(t *testing.T) {
	searcher := newStubSearcher()
	searcher.hits["books"] = []*VectorSearchResult{
		bookHit(1, 1, 0, 0.1),
		bookHit(1, 1, 0, 0.15), // same positional id
	}
	eng := newTestEngine(searcher, nil)

	out, err := eng.Search(context.Background(), SearchInput{Query: "dup"})
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
}

func TestSearchScoreThreshold(t *testing.T) {
	searcher := newStubSearcher()
	searcher.hits["books"] = []*VectorSearchResult{
		bookHit(1, 1, 0, 0.1), // score 0.9
		bookHit(1, 2, 0, 0.8), // score 0.2
	}
	eng := newTestEngine(searcher, nil)

	out, err := eng.Search(context.Background(), SearchInput{Query: "q", ScoreThreshold: 0.5})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "book_01_ch_01_chunk_000", out.Results[0].Chunk.ChunkID)
}

func TestSearchTopKClamped(t *testing.T) {
	searcher := newStubSearcher()
	for i := 0; i < 60; i++ {
		searcher.hits["books"] = append(searcher.hits["books"], bookHit(1, 1, i, float32(i)/1000))
	}
	eng := newTestEngine(searcher, nil)

	out, err := eng.Search(context.Background(), SearchInput{Query: "q", TopK: 500})
	require.NoError(t, err)
	assert.Len(t, out.Results, 50)
}

func TestSearchEmptyQuery(t *testing.T) {
	eng := newTestEngine(newStubSearcher(), nil)
	_, err := eng.Search(context.Background(), SearchInput{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchPropagatesStoreError(t *testing.T) {
	searcher := newStubSearcher()
	searcher.failOn = "wiki"
	eng := newTestEngine(searcher, nil)

	_, err := eng.Search(context.Background(), SearchInput{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wiki")
}

func TestSearchStoreErrorCarriesVectorDBCode(t *testing.T) {
	searcher := newStubSearcher()
	searcher.failOn = "books"
	eng := newTestEngine(searcher, nil)

	_, err := eng.Search(context.Background(), SearchInput{Query: "q"})
	require.Error(t, err)
	require.True(t, apperrors.IsAppError(err))
	assert.Equal(t, apperrors.CodeVectorDBError, apperrors.AsAppError(err).Code)
}

func TestSearchEmbedderErrorCarriesEmbeddingCode(t *testing.T) {
	eng := NewEngine(&stubEmbedder{fail: true}, newStubSearcher(), nil, EngineOptions{})

	_, err := eng.Search(context.Background(), SearchInput{Query: "q"})
	require.Error(t, err)
	require.True(t, apperrors.IsAppError(err))
	assert.Equal(t, apperrors.CodeEmbeddingFailed, apperrors.AsAppError(err).Code)
}

func TestSearchDisabled(t *testing.T) {
	eng := NewEngine(nil, nil, nil, EngineOptions{})
	_, err := eng.Search(context.Background(), SearchInput{Query: "q"})
	assert.ErrorIs(t, err, ErrVectorDisabled)
}

func TestSearchCacheRoundTrip(t *testing.T) {
	searcher := newStubSearcher()
	searcher.hits["books"] = []*VectorSearchResult{bookHit(1, 1, 0, 0.1)}
	cache := newStubCache()
	eng := NewEngine(&stubEmbedder{}, searcher, cache, EngineOptions{})

	first, err := eng.Search(context.Background(), SearchInput{Query: "cached query"})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Equal(t, 1, cache.sets)

	second, err := eng.Search(context.Background(), SearchInput{Query: "cached query"})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	require.Len(t, second.Results, 1)
	assert.Equal(t, first.Results[0].Chunk.ChunkID, second.Results[0].Chunk.ChunkID)
	// 命中缓存时不再写回
	assert.Equal(t, 1, cache.sets)
}

func TestSearchCacheKeyVariesByBoundary(t *testing.T) {
	searcher := newStubSearcher()
	searcher.hits["books"] = []*VectorSearchResult{
		bookHit(1, 1, 0, 0.1),
		bookHit(5, 1, 0, 0.05),
	}
	cache := newStubCache()
	eng := NewEngine(&stubEmbedder{}, searcher, cache, EngineOptions{})

	all, err := eng.Search(context.Background(), SearchInput{Query: "q"})
	require.NoError(t, err)
	require.Len(t, all.Results, 2)

	// 不同 max_book 不得命中同一缓存条目
	bounded, err := eng.Search(context.Background(), SearchInput{Query: "q", MaxBook: intPtr(2)})
	require.NoError(t, err)
	assert.False(t, bounded.FromCache)
	require.Len(t, bounded.Results, 1)
	assert.Equal(t, "book_01_ch_01_chunk_000", bounded.Results[0].Chunk.ChunkID)
}

func TestSearchIncludeEmbedding(t *testing.T) {
	searcher := newStubSearcher()
	eng := newTestEngine(searcher, nil)

	out, err := eng.Search(context.Background(), SearchInput{Query: "q", IncludeEmbedding: true})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, out.QueryEmbedding)
}

func TestMergeCandidatesTruncates(t *testing.T) {
	var books []ScoredChunk
	for i := 0; i < 8; i++ {
		c := entity.NewBookChunk(1, 1, i, "C", entity.SectionChapter, "t")
		books = append(books, ScoredChunk{Chunk: c, Score: 1 - float64(i)*0.01, Collection: "books"})
	}
	out := MergeCandidates(books, nil, 3)
	require.Len(t, out, 3)
	assert.Equal(t, "book_01_ch_01_chunk_000", out[0].Chunk.ChunkID)
}
