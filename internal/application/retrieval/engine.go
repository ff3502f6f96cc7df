package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"dragons-codex/internal/domain/entity"
	apperrors "dragons-codex/pkg/errors"
	"dragons-codex/pkg/logger"
	"dragons-codex/pkg/metrics"
)

const (
	defaultTopK         = 10
	defaultMaxTopK      = 50
	minOverfetchFactor  = 2
	defaultCacheTTL     = 10 * time.Minute
	queryCacheKeyPrefix = "query:"
)

// EngineOptions 检索引擎配置
type EngineOptions struct {
	BooksCollection string
	WikiCollection  string
	DefaultTopK     int
	MaxTopK         int
	OverfetchFactor int
	ScoreThreshold  float64
	CacheTTL        time.Duration
}

// Engine 双集合检索引擎：召回 → 过滤 → 合并 → 去重 → 截断
// 只读，可被并发请求共享；相同查询的并发未命中经 singleflight 合并。
type Engine struct {
	embedder embedding.Embedder
	vector   VectorSearcher
	cache    QueryCache
	flight   singleflight.Group
	opts     EngineOptions
}

func NewEngine(embedder embedding.Embedder, vector VectorSearcher, cache QueryCache, opts EngineOptions) *Engine {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = defaultTopK
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = defaultMaxTopK
	}
	if opts.OverfetchFactor < minOverfetchFactor {
		opts.OverfetchFactor = minOverfetchFactor
	}
	if opts.BooksCollection == "" {
		opts.BooksCollection = "books"
	}
	if opts.WikiCollection == "" {
		opts.WikiCollection = "wiki"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	return &Engine{
		embedder: embedder,
		vector:   vector,
		cache:    cache,
		opts:     opts,
	}
}

func (e *Engine) Enabled() bool {
	return e != nil && e.embedder != nil && e.vector != nil
}

// Search 执行一次剧透安全的检索
// 检索失败同步上抛，不以空结果静默兜底。
func (e *Engine) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	if !e.Enabled() {
		return nil, ErrVectorDisabled
	}
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return nil, ErrEmptyQuery
	}
	if in.TopK <= 0 {
		in.TopK = e.opts.DefaultTopK
	}
	if in.TopK > e.opts.MaxTopK {
		in.TopK = e.opts.MaxTopK
	}
	threshold := e.opts.ScoreThreshold
	if in.ScoreThreshold > 0 {
		threshold = in.ScoreThreshold
	}

	// embedding 回显请求不缓存也不合并
	if in.IncludeEmbedding {
		return e.doSearch(ctx, in, threshold)
	}

	cacheKey := e.cacheKey(in, threshold)
	if e.cache != nil {
		if data, err := e.cache.Get(ctx, cacheKey); err == nil && len(data) > 0 {
			var out SearchOutput
			if err := json.Unmarshal(data, &out); err == nil {
				metrics.CacheHitTotal.WithLabelValues("hit").Inc()
				out.FromCache = true
				return &out, nil
			}
		}
		metrics.CacheHitTotal.WithLabelValues("miss").Inc()
	}

	// 未命中走 singleflight：相同键的并发请求只计算一次
	v, err, _ := e.flight.Do(cacheKey, func() (interface{}, error) {
		out, err := e.doSearch(ctx, in, threshold)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			// 缓存写失败不影响返回
			if err := e.cache.Set(ctx, cacheKey, out, e.opts.CacheTTL); err != nil {
				logger.Debug(ctx, "query cache set failed", "error", err.Error())
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SearchOutput), nil
}

// doSearch 执行一次完整的召回与合并，不经缓存
func (e *Engine) doSearch(ctx context.Context, in SearchInput, threshold float64) (*SearchOutput, error) {
	if err := e.vector.EnsureCollections(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "ensure collections failed")
	}

	queryVec, err := e.embedQuery(ctx, in.Query)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "embed query failed")
	}

	// 过量召回补偿过滤损耗
	fetchK := in.TopK * e.opts.OverfetchFactor

	var bookHits, wikiHits []*VectorSearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bookHits, err = e.searchCollection(gctx, e.opts.BooksCollection, queryVec, fetchK, in.MaxBook)
		return err
	})
	g.Go(func() error {
		var err error
		wikiHits, err = e.searchCollection(gctx, e.opts.WikiCollection, queryVec, fetchK, in.MaxBook)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	books := e.toScored(bookHits, e.opts.BooksCollection, threshold, in.MaxBook)
	wiki := e.toScored(wikiHits, e.opts.WikiCollection, threshold, in.MaxBook)

	results := MergeCandidates(books, wiki, in.TopK)

	// 剧透不变量的最终裁决：任何越界块到不了调用方
	if in.MaxBook != nil {
		kept := results[:0]
		for _, r := range results {
			if violatesBoundary(r.Chunk, *in.MaxBook) {
				metrics.SpoilerFilteredTotal.WithLabelValues(r.Collection).Inc()
				logger.Warn(ctx, "spoiler boundary violation dropped past merge",
					"chunk_id", r.Chunk.ChunkID, "max_book", *in.MaxBook)
				continue
			}
			kept = append(kept, r)
		}
		results = kept
	}

	out := &SearchOutput{Results: results}
	if in.IncludeEmbedding {
		out.QueryEmbedding = queryVec
	}

	metrics.RetrievalResultCount.WithLabelValues("merged").Observe(float64(len(results)))

	return out, nil
}

func (e *Engine) searchCollection(ctx context.Context, collection string, vec []float32, topK int, maxBook *int) ([]*VectorSearchResult, error) {
	start := time.Now()
	hits, err := e.vector.SearchChunks(ctx, &VectorSearchParams{
		Collection:  collection,
		QueryVector: vec,
		TopK:        topK,
		MaxBook:     maxBook,
	})
	metrics.MilvusSearchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues(collection, "error").Inc()
		return nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "search "+collection+" failed")
	}
	metrics.MilvusSearchTotal.WithLabelValues(collection, "success").Inc()
	return hits, nil
}

// toScored 距离转相似度并应用阈值与时间线过滤
func (e *Engine) toScored(hits []*VectorSearchResult, collection string, threshold float64, maxBook *int) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		if h == nil || h.Chunk == nil {
			continue
		}
		score := 1 - float64(h.Distance) // COSINE: distance = 1 - cos
		if score < threshold {
			continue
		}
		if maxBook != nil && violatesBoundary(h.Chunk, *maxBook) {
			metrics.SpoilerFilteredTotal.WithLabelValues(collection).Inc()
			continue
		}
		out = append(out, ScoredChunk{Chunk: h.Chunk, Score: score, Collection: collection})
	}
	return out
}

// violatesBoundary 判断块是否越过剧透边界
func violatesBoundary(c *entity.Chunk, maxBook int) bool {
	return c.TemporalOrder != nil && *c.TemporalOrder > maxBook
}

// MergeCandidates 按相似度降序合并两个候选列表
// 同分时书籍优先于维基；按 chunk_id 去重；截断到 topK。
func MergeCandidates(books, wiki []ScoredChunk, topK int) []ScoredChunk {
	merged := make([]ScoredChunk, 0, len(books)+len(wiki))
	merged = append(merged, books...)
	merged = append(merged, wiki...)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.Source == entity.SourceBook && merged[j].Chunk.Source != entity.SourceBook
	})

	seen := make(map[string]bool, len(merged))
	out := make([]ScoredChunk, 0, topK)
	for _, r := range merged {
		if seen[r.Chunk.ChunkID] {
			continue
		}
		seen[r.Chunk.ChunkID] = true
		out = append(out, r)
		if len(out) >= topK {
			break
		}
	}
	return out
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	v64, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(v64) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	vec := v64[0]
	out := make([]float32, 0, len(vec))
	for _, x := range vec {
		out = append(out, float32(x))
	}
	return out, nil
}

// cacheKey 由查询参数派生稳定缓存键
func (e *Engine) cacheKey(in SearchInput, threshold float64) string {
	boundary := "all"
	if in.MaxBook != nil {
		boundary = fmt.Sprintf("%d", *in.MaxBook)
	}
	raw := fmt.Sprintf("%s|%s|%d|%.4f", in.Query, boundary, in.TopK, threshold)
	sum := sha256.Sum256([]byte(raw))
	return queryCacheKeyPrefix + hex.EncodeToString(sum[:16])
}
