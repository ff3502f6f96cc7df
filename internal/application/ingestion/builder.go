package ingestion

import (
	"dragons-codex/internal/domain/entity"
)

// BuildChunks 把已解析的 Document 变成有序块序列
// 两阶段构建：先切分全部块，再回填 total_chunks_in_chapter；
// 超出硬上限的块记为 ChunkSizeViolation 并剔除，不影响兄弟块。
func BuildChunks(doc *entity.Document, chunker *Chunker) ([]*entity.Chunk, []error) {
	if doc.SourceType == entity.SourceWiki {
		return buildWikiChunks(doc, chunker)
	}
	return buildBookChunks(doc, chunker)
}

func buildBookChunks(doc *entity.Document, chunker *Chunker) ([]*entity.Chunk, []error) {
	var (
		chunks     []*entity.Chunk
		violations []error
	)

	for _, section := range doc.Sections {
		ordinal := 0
		if section.Ordinal != nil {
			ordinal = *section.Ordinal
		}
		texts := chunker.Split(section.Text)

		// 第一阶段：切分
		sectionChunks := make([]*entity.Chunk, 0, len(texts))
		for idx, text := range texts {
			if len(text) > chunker.MaxChars() {
				violations = append(violations, &ChunkSizeViolation{
					SectionTitle: section.Title,
					ChunkIndex:   idx,
					Size:         len(text),
					Max:          chunker.MaxChars(),
				})
				continue
			}
			sectionChunks = append(sectionChunks, entity.NewBookChunk(
				doc.BookNumber, ordinal, idx, section.Title, section.Type, text))
		}

		// 第二阶段：回填章内总块数
		for _, c := range sectionChunks {
			c.Book.TotalChunksInChapter = len(sectionChunks)
		}
		chunks = append(chunks, sectionChunks...)
	}

	// 术语表条目绕过切分器，一条一块，无时间归属
	for idx, entry := range doc.Glossary {
		chunks = append(chunks, entity.NewGlossaryChunk(doc.BookNumber, idx, entry))
	}

	return chunks, violations
}

func buildWikiChunks(doc *entity.Document, chunker *Chunker) ([]*entity.Chunk, []error) {
	var (
		chunks     []*entity.Chunk
		violations []error
	)

	for sectionIdx, section := range doc.Sections {
		texts := chunker.Split(section.Text)
		for idx, text := range texts {
			if len(text) > chunker.MaxChars() {
				violations = append(violations, &ChunkSizeViolation{
					SectionTitle: section.Title,
					ChunkIndex:   idx,
					Size:         len(text),
					Max:          chunker.MaxChars(),
				})
				continue
			}
			chunks = append(chunks, entity.NewWikiChunk(
				doc.Title, sectionIdx, idx, doc.WikiType, doc.Title, section.Title, text, section.Ordinal))
		}
	}

	return chunks, violations
}
