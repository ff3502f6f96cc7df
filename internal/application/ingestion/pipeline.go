package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dragons-codex/internal/domain/entity"
	apperrors "dragons-codex/pkg/errors"
	"dragons-codex/pkg/logger"
	"dragons-codex/pkg/metrics"
)

// wikiDirHints 维基语料子目录到页面类型提示的映射
var wikiDirHints = map[string]entity.WikiType{
	"characters": entity.WikiCharacter,
	"chronology": entity.WikiChronology,
	"summaries":  entity.WikiChapterSummary,
	"concepts":   entity.WikiConcept,
}

// PipelineReport 一次全量摄取的汇总
type PipelineReport struct {
	BatchReport
	Files       int                   `json:"files"`
	FailedFiles []string              `json:"failed_files,omitempty"`
	Warnings    []entity.ParseWarning `json:"warnings,omitempty"`
}

// Pipeline 摄取管线：解析 → 切分 → 充实 → 索引
// 文件间完全并行，共享状态只有只读的别名索引。
type Pipeline struct {
	chunker  *Chunker
	enricher *Enricher
	indexer  *Indexer
	workers  int
}

func NewPipeline(chunker *Chunker, enricher *Enricher, indexer *Indexer, workers int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		chunker:  chunker,
		enricher: enricher,
		indexer:  indexer,
		workers:  workers,
	}
}

// IngestBooks 摄取书籍目录下全部 `NN-Title.txt` 文件
func (p *Pipeline) IngestBooks(ctx context.Context, dir string) (*PipelineReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	report := &PipelineReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, path := range files {
		g.Go(func() error {
			fileReport := p.ingestBookFile(gctx, path)
			mu.Lock()
			report.mergeFile(fileReport)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// IngestWiki 摄取维基目录，子目录名决定页面类型提示
func (p *Pipeline) IngestWiki(ctx context.Context, dir string) (*PipelineReport, error) {
	type wikiFile struct {
		path string
		hint entity.WikiType
	}
	var files []wikiFile

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		hint := entity.WikiConcept
		rel, relErr := filepath.Rel(dir, path)
		if relErr == nil {
			if parts := strings.Split(rel, string(filepath.Separator)); len(parts) > 1 {
				if h, ok := wikiDirHints[parts[0]]; ok {
					hint = h
				}
			}
		}
		files = append(files, wikiFile{path: path, hint: hint})
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &PipelineReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, f := range files {
		g.Go(func() error {
			fileReport := p.ingestWikiFile(gctx, f.path, f.hint)
			mu.Lock()
			report.mergeFile(fileReport)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// fileReport 单文件摄取结果
type fileReport struct {
	batch      *BatchReport
	warnings   []entity.ParseWarning
	failedFile string
}

func (r *PipelineReport) mergeFile(f *fileReport) {
	r.Files++
	if f == nil {
		return
	}
	r.Merge(f.batch)
	r.Warnings = append(r.Warnings, f.warnings...)
	if f.failedFile != "" {
		r.FailedFiles = append(r.FailedFiles, f.failedFile)
	}
}

func (p *Pipeline) ingestBookFile(ctx context.Context, path string) *fileReport {
	start := time.Now()
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error(ctx, "read book file failed", err, "file", path)
		metrics.IngestDocumentsTotal.WithLabelValues("book", "error").Inc()
		return &fileReport{failedFile: filepath.Base(path)}
	}

	doc, warnings, err := ParseBook(path, string(raw))
	if err != nil {
		// 单文件解析失败不影响批次其余文件
		logger.Error(ctx, "parse book failed, file skipped",
			apperrors.Wrap(err, apperrors.CodeParseFailed, "document parse failed"), "file", path)
		metrics.IngestDocumentsTotal.WithLabelValues("book", "error").Inc()
		return &fileReport{warnings: warnings, failedFile: filepath.Base(path)}
	}

	return p.indexDocument(ctx, doc, warnings, "book", start)
}

func (p *Pipeline) ingestWikiFile(ctx context.Context, path string, hint entity.WikiType) *fileReport {
	start := time.Now()
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error(ctx, "read wiki file failed", err, "file", path)
		metrics.IngestDocumentsTotal.WithLabelValues("wiki", "error").Inc()
		return &fileReport{failedFile: filepath.Base(path)}
	}

	doc, warnings, err := ParseWiki(path, string(raw), hint)
	if err != nil {
		logger.Error(ctx, "parse wiki failed, file skipped",
			apperrors.Wrap(err, apperrors.CodeParseFailed, "document parse failed"), "file", path)
		metrics.IngestDocumentsTotal.WithLabelValues("wiki", "error").Inc()
		return &fileReport{warnings: warnings, failedFile: filepath.Base(path)}
	}

	return p.indexDocument(ctx, doc, warnings, "wiki", start)
}

func (p *Pipeline) indexDocument(ctx context.Context, doc *entity.Document, warnings []entity.ParseWarning, source string, start time.Time) *fileReport {
	chunks, violations := BuildChunks(doc, p.chunker)
	for _, v := range violations {
		logger.Warn(ctx, "chunk dropped", "file", doc.Identifier,
			"code", string(apperrors.CodeChunkTooLarge), "error", v.Error())
	}

	for _, c := range chunks {
		p.enricher.Enrich(c)
		metrics.IngestChunkSize.WithLabelValues(source).Observe(float64(len(c.Text)))
	}
	metrics.IngestChunksTotal.WithLabelValues(source).Add(float64(len(chunks)))

	batch, err := p.indexer.IndexChunks(ctx, chunks)
	if err != nil {
		logger.Error(ctx, "index document failed",
			apperrors.Wrap(err, apperrors.CodeIndexFailed, "chunk indexing failed"), "file", doc.Identifier)
		metrics.IngestDocumentsTotal.WithLabelValues(source, "error").Inc()
		return &fileReport{batch: batch, warnings: warnings, failedFile: doc.Identifier}
	}
	batch.Skipped += len(violations)

	metrics.IngestDocumentsTotal.WithLabelValues(source, "success").Inc()
	metrics.IngestDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	logger.Info(ctx, "document ingested",
		"file", doc.Identifier,
		"chunks", len(chunks),
		"indexed", batch.Indexed,
		"failed", len(batch.Failed),
		"duration_ms", time.Since(start).Milliseconds())

	return &fileReport{batch: batch, warnings: warnings}
}
