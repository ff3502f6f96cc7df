package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// BookFields 书籍块的来源字段
type BookFields struct {
	BookNumber           int         `json:"book_number"`
	BookTitle            string      `json:"book_title"`
	ChapterNumber        int         `json:"chapter_number"`
	ChapterTitle         string      `json:"chapter_title"`
	ChapterType          SectionType `json:"chapter_type"`
	ChunkIndex           int         `json:"chunk_index"`
	TotalChunksInChapter int         `json:"total_chunks_in_chapter"`
	GlossaryTerm         string      `json:"glossary_term,omitempty"`
}

// WikiFields 维基块的来源字段
type WikiFields struct {
	WikiType      WikiType `json:"wiki_type"`
	PageTitle     string   `json:"page_title"`
	CharacterName string   `json:"character_name,omitempty"`
	SectionTitle  string   `json:"section_title"`
	SectionIndex  int      `json:"section_index"`
	ChunkIndex    int      `json:"chunk_index"`
}

// Chunk 检索的原子单元
// Book 与 Wiki 互斥，由 Source 判别；入库后不再修改
type Chunk struct {
	ChunkID           string      `json:"chunk_id"`
	Source            SourceType  `json:"source"`
	Text              string      `json:"text"`
	TemporalOrder     *int        `json:"temporal_order"`
	CharacterMentions []string    `json:"character_mentions"`
	ConceptMentions   []string    `json:"concept_mentions"`
	MagicMentions     []string    `json:"magic_mentions"`
	ContentHash       string      `json:"content_hash"`
	Book              *BookFields `json:"book,omitempty"`
	Wiki              *WikiFields `json:"wiki,omitempty"`
}

// NewBookChunk 构建一个书籍正文块
// chunk_id 由位置谱系决定，相同输入重新摄取必得相同 id
func NewBookChunk(bookNumber, chapterNumber, chunkIndex int, chapterTitle string, chapterType SectionType, text string) *Chunk {
	title, _ := BookTitle(bookNumber)
	order := bookNumber
	return &Chunk{
		ChunkID:       fmt.Sprintf("book_%02d_ch_%02d_chunk_%03d", bookNumber, chapterNumber, chunkIndex),
		Source:        SourceBook,
		Text:          text,
		TemporalOrder: &order,
		ContentHash:   HashContent(text),
		Book: &BookFields{
			BookNumber:    bookNumber,
			BookTitle:     title,
			ChapterNumber: chapterNumber,
			ChapterTitle:  chapterTitle,
			ChapterType:   chapterType,
			ChunkIndex:    chunkIndex,
		},
	}
}

// NewGlossaryChunk 构建一个术语表块，无时间归属
func NewGlossaryChunk(bookNumber, entryIndex int, entry GlossaryEntry) *Chunk {
	title, _ := BookTitle(bookNumber)
	text := entry.Term
	if entry.Pronunciation != "" {
		text += " (" + entry.Pronunciation + ")"
	}
	text += ": " + entry.Description
	return &Chunk{
		ChunkID:     fmt.Sprintf("book_%02d_glossary_%03d", bookNumber, entryIndex),
		Source:      SourceBook,
		Text:        text,
		ContentHash: HashContent(text),
		Book: &BookFields{
			BookNumber:   bookNumber,
			BookTitle:    title,
			ChapterType:  SectionGlossary,
			ChunkIndex:   entryIndex,
			GlossaryTerm: entry.Term,
		},
	}
}

// NewWikiChunk 构建一个维基块
// temporalOrder 为段落解析出的书号，无归属传 nil
func NewWikiChunk(pageSlug string, sectionIndex, chunkIndex int, wikiType WikiType, pageTitle, sectionTitle, text string, temporalOrder *int) *Chunk {
	c := &Chunk{
		ChunkID:       fmt.Sprintf("wiki_%s_sec_%02d_chunk_%03d", Slugify(pageSlug), sectionIndex, chunkIndex),
		Source:        SourceWiki,
		Text:          text,
		TemporalOrder: temporalOrder,
		ContentHash:   HashContent(text),
		Wiki: &WikiFields{
			WikiType:     wikiType,
			PageTitle:    pageTitle,
			SectionTitle: sectionTitle,
			SectionIndex: sectionIndex,
			ChunkIndex:   chunkIndex,
		},
	}
	if wikiType == WikiCharacter {
		c.Wiki.CharacterName = pageTitle
	}
	return c
}

// SetMentions 写入提及列表，统一排序保证可复现
func (c *Chunk) SetMentions(characters, concepts, magic []string) {
	c.CharacterMentions = sortedCopy(characters)
	c.ConceptMentions = sortedCopy(concepts)
	c.MagicMentions = sortedCopy(magic)
}

// LineageKey 返回块的来源谱系 (source, identifier, ordinal)
// 上下文装配按此分组以保持叙事连续性
func (c *Chunk) LineageKey() string {
	switch {
	case c.Book != nil:
		return fmt.Sprintf("book/%02d/%02d", c.Book.BookNumber, c.Book.ChapterNumber)
	case c.Wiki != nil:
		return fmt.Sprintf("wiki/%s/%02d", Slugify(c.Wiki.PageTitle), c.Wiki.SectionIndex)
	default:
		return c.ChunkID
	}
}

// OrderInLineage 组内排序用的位置序号
func (c *Chunk) OrderInLineage() int {
	switch {
	case c.Book != nil:
		return c.Book.ChunkIndex
	case c.Wiki != nil:
		return c.Wiki.ChunkIndex
	default:
		return 0
	}
}

// HashContent 计算内容哈希，用于漂移检测
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 将标题归一化为 id 安全的 slug
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
