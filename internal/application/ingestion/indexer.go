package ingestion

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"dragons-codex/internal/domain/entity"
	"dragons-codex/pkg/logger"
	"dragons-codex/pkg/metrics"
)

const defaultEmbeddingBatch = 64

// BackoffPolicy 指数退避参数
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Next 返回第 attempt 次（0 起）重试前的等待时间
func (b BackoffPolicy) Next(attempt int) time.Duration {
	d := b.Initial
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Multiplier)
		if b.Max > 0 && d > b.Max {
			return b.Max
		}
	}
	return d
}

// BatchReport 一次批量索引的结果汇总
// 单块失败不影响同批其他块（partial-failure 语义）。
type BatchReport struct {
	Indexed  int      `json:"indexed"`
	Failed   []string `json:"failed,omitempty"` // 失败块的 chunk_id
	Skipped  int      `json:"skipped"`
	Duration string   `json:"duration,omitempty"`
}

// Merge 合并另一份报告
func (r *BatchReport) Merge(other *BatchReport) {
	if other == nil {
		return
	}
	r.Indexed += other.Indexed
	r.Skipped += other.Skipped
	r.Failed = append(r.Failed, other.Failed...)
}

// IndexerOptions 索引器配置
type IndexerOptions struct {
	BooksCollection    string
	WikiCollection     string
	EmbeddingBatchSize int
	RetryLimit         int
	Backoff            BackoffPolicy
	Provider           string
	Model              string
}

// Indexer 为块批量取 embedding 并按来源 upsert 到对应集合
type Indexer struct {
	embedder embedding.Embedder
	vector   VectorWriter
	opts     IndexerOptions
}

func NewIndexer(embedder embedding.Embedder, vector VectorWriter, opts IndexerOptions) *Indexer {
	if opts.EmbeddingBatchSize <= 0 {
		opts.EmbeddingBatchSize = defaultEmbeddingBatch
	}
	if opts.RetryLimit < 0 {
		opts.RetryLimit = 0
	}
	if opts.BooksCollection == "" {
		opts.BooksCollection = "books"
	}
	if opts.WikiCollection == "" {
		opts.WikiCollection = "wiki"
	}
	return &Indexer{
		embedder: embedder,
		vector:   vector,
		opts:     opts,
	}
}

func (i *Indexer) Enabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

// Collection 返回来源类型对应的集合名
func (i *Indexer) Collection(source entity.SourceType) string {
	if source == entity.SourceWiki {
		return i.opts.WikiCollection
	}
	return i.opts.BooksCollection
}

// IndexChunks 索引一批已充实的块
// 以块为失败单元：某批 embedding 重试耗尽后逐块降级重嵌，
// 仅真正失败的块记为失败并跳过入库，同批其余块照常入库。
func (i *Indexer) IndexChunks(ctx context.Context, chunks []*entity.Chunk) (*BatchReport, error) {
	report := &BatchReport{}
	if len(chunks) == 0 {
		return report, nil
	}
	if !i.Enabled() {
		return report, ErrVectorDisabled
	}
	if err := i.vector.EnsureCollections(ctx); err != nil {
		return report, err
	}

	// 按来源分流到各自集合
	bySource := map[entity.SourceType][]*entity.Chunk{}
	for _, c := range chunks {
		if c == nil || c.Text == "" {
			report.Skipped++
			continue
		}
		bySource[c.Source] = append(bySource[c.Source], c)
	}

	for source, group := range bySource {
		collection := i.Collection(source)
		for start := 0; start < len(group); start += i.opts.EmbeddingBatchSize {
			end := start + i.opts.EmbeddingBatchSize
			if end > len(group) {
				end = len(group)
			}
			batch := group[start:end]

			records, err := i.embedAndBuild(ctx, batch)
			if err != nil {
				// 整批失败后逐块降级，坏块不拖垮同批兄弟块
				logger.Warn(ctx, "embedding batch failed, falling back to per-chunk embedding",
					"collection", collection, "batch_size", len(batch), "error", err.Error())
				var failed []string
				records, failed = i.embedIndividually(ctx, batch)
				report.Failed = append(report.Failed, failed...)
				if len(records) == 0 {
					continue
				}
			}

			if err := i.upsertWithRetry(ctx, collection, records); err != nil {
				for _, c := range batch {
					report.Failed = append(report.Failed, c.ChunkID)
				}
				logger.Error(ctx, "vector upsert failed after retries", err,
					"collection", collection, "batch_size", len(batch))
				continue
			}
			report.Indexed += len(records)
		}
	}

	return report, nil
}

// embedAndBuild 对一批块取 embedding，失败按策略重试
func (i *Indexer) embedAndBuild(ctx context.Context, batch []*entity.Chunk) ([]*VectorRecord, error) {
	texts := make([]string, 0, len(batch))
	for _, c := range batch {
		texts = append(texts, c.Text)
	}

	var (
		vectors [][]float64
		err     error
	)
	metrics.EmbeddingBatchSize.WithLabelValues(i.opts.Provider, i.opts.Model).Observe(float64(len(texts)))
	for attempt := 0; ; attempt++ {
		start := time.Now()
		vectors, err = i.embedder.EmbedStrings(ctx, texts)
		metrics.EmbeddingCallDuration.WithLabelValues(i.opts.Provider, i.opts.Model).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.EmbeddingCallTotal.WithLabelValues(i.opts.Provider, i.opts.Model, "success").Inc()
			break
		}
		metrics.EmbeddingCallTotal.WithLabelValues(i.opts.Provider, i.opts.Model, "error").Inc()
		if attempt >= i.opts.RetryLimit {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(i.opts.Backoff.Next(attempt)):
		}
	}
	if len(vectors) != len(batch) {
		return nil, ErrEmbeddingCount
	}

	records := make([]*VectorRecord, 0, len(batch))
	for idx, c := range batch {
		vec := make([]float32, 0, len(vectors[idx]))
		for _, x := range vectors[idx] {
			vec = append(vec, float32(x))
		}
		records = append(records, &VectorRecord{Chunk: c, Vector: vec})
	}
	return records, nil
}

// embedIndividually 逐块取 embedding，返回成功的记录与失败块的 chunk_id
func (i *Indexer) embedIndividually(ctx context.Context, batch []*entity.Chunk) ([]*VectorRecord, []string) {
	var (
		records []*VectorRecord
		failed  []string
	)
	for idx, c := range batch {
		if ctx.Err() != nil {
			for _, rest := range batch[idx:] {
				failed = append(failed, rest.ChunkID)
			}
			break
		}
		recs, err := i.embedAndBuild(ctx, []*entity.Chunk{c})
		if err != nil {
			failed = append(failed, c.ChunkID)
			logger.Warn(ctx, "chunk embedding failed, chunk excluded from commit",
				"chunk_id", c.ChunkID, "error", err.Error())
			continue
		}
		records = append(records, recs...)
	}
	return records, failed
}

// upsertWithRetry 入库失败时单次重试（瞬时故障兜底）
func (i *Indexer) upsertWithRetry(ctx context.Context, collection string, records []*VectorRecord) error {
	err := i.vector.UpsertChunks(ctx, collection, records)
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(i.opts.Backoff.Next(0)):
	}
	return i.vector.UpsertChunks(ctx, collection, records)
}
