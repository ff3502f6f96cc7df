package entity

// SourceType 文档来源类型
type SourceType string

const (
	SourceBook SourceType = "book"
	SourceWiki SourceType = "wiki"
)

// SectionType 章节/段落类型
type SectionType string

const (
	// 书籍结构
	SectionPrologue SectionType = "prologue"
	SectionChapter  SectionType = "chapter"
	SectionEpilogue SectionType = "epilogue"
	SectionGlossary SectionType = "glossary"

	// 维基结构
	SectionChronology     SectionType = "chronology"
	SectionCharacter      SectionType = "character"
	SectionChapterSummary SectionType = "chapter_summary"
	SectionConcept        SectionType = "concept"
)

// WikiType 维基页面类型
type WikiType string

const (
	WikiChronology     WikiType = "chronology"
	WikiCharacter      WikiType = "character"
	WikiChapterSummary WikiType = "chapter_summary"
	WikiConcept        WikiType = "concept"
)

// Section 文档内的一个结构化段落
// Ordinal 为书籍章号或维基段落解析出的书号，无时间归属时为 nil
type Section struct {
	Title   string      `json:"title"`
	Type    SectionType `json:"type"`
	Ordinal *int        `json:"ordinal,omitempty"`
	Text    string      `json:"text"`
}

// GlossaryEntry 书末术语表条目
type GlossaryEntry struct {
	Term          string `json:"term"`
	Pronunciation string `json:"pronunciation,omitempty"`
	Description   string `json:"description"`
}

// ParseWarning 解析过程中可恢复的分类歧义
type ParseWarning struct {
	File    string `json:"file"`
	Section string `json:"section,omitempty"`
	Reason  string `json:"reason"`
}

// Document 一个已解析的源文件，解析完成后不可变
type Document struct {
	SourceType SourceType      `json:"source_type"`
	Identifier string          `json:"identifier"`
	Title      string          `json:"title,omitempty"`
	BookNumber int             `json:"book_number,omitempty"`
	WikiType   WikiType        `json:"wiki_type,omitempty"`
	Sections   []Section       `json:"sections"`
	Glossary   []GlossaryEntry `json:"glossary,omitempty"`
}

// IsTemporal 判断文档内容是否带有时间线归属
func (d *Document) IsTemporal() bool {
	if d.SourceType == SourceBook {
		return true
	}
	for _, s := range d.Sections {
		if s.Ordinal != nil {
			return true
		}
	}
	return false
}
