package ingestion

import (
	"path/filepath"
	"regexp"
	"strings"

	"dragons-codex/internal/domain/entity"
)

var (
	headingPattern = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*$`)
	inBookPattern  = regexp.MustCompile(`^In\s+(.+)$`)
)

// topicalHeadings 大人物页常见的主题段标题
var topicalHeadings = map[string]bool{
	"overview":      true,
	"appearance":    true,
	"personality":   true,
	"abilities":     true,
	"relationships": true,
	"history":       true,
	"biography":     true,
	"trivia":        true,
	"quotes":        true,
}

// ParseWiki 将一个 markdown 维基页解析为结构化 Document
// typeHint 来自语料目录布局（chronology / character / chapter_summary / concept），
// 含 "## In <书名>" 结构的页面按小人物页处理，每个此类标题解析出书号作为 ordinal。
func ParseWiki(filename, raw string, typeHint entity.WikiType) (*entity.Document, []entity.ParseWarning, error) {
	base := filepath.Base(filename)

	doc := &entity.Document{
		SourceType: entity.SourceWiki,
		Identifier: base,
		WikiType:   typeHint,
	}
	var warnings []entity.ParseWarning

	lines := strings.Split(raw, "\n")

	type rawSection struct {
		title string
		level int
		body  []string
	}
	var (
		sections []rawSection
		current  *rawSection
		preamble []string
	)

	for _, line := range lines {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			if level == 1 && doc.Title == "" {
				doc.Title = title
				continue
			}
			if level >= 3 && current != nil {
				// 三级标题并入所在二级段落，保留标题文本
				current.body = append(current.body, line)
				continue
			}
			if current != nil {
				sections = append(sections, *current)
			}
			current = &rawSection{title: title, level: level}
			continue
		}
		if current != nil {
			current.body = append(current.body, line)
		} else {
			preamble = append(preamble, line)
		}
	}
	if current != nil {
		sections = append(sections, *current)
	}

	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if len(sections) == 0 {
		if strings.TrimSpace(strings.Join(preamble, "\n")) == "" {
			return nil, warnings, &ParseError{File: base, Reason: "wiki page has no headings and no body"}
		}
		return nil, warnings, &ParseError{File: base, Reason: "wiki page has no headings"}
	}

	// 结构判别：出现可解析书号的 "In <书名>" 二级标题即为时间线页面
	temporal := false
	for _, s := range sections {
		if m := inBookPattern.FindStringSubmatch(s.title); m != nil {
			if _, ok := entity.BookNumberForTitle(m[1]); ok {
				temporal = true
				break
			}
		}
	}
	if temporal {
		doc.WikiType = entity.WikiCharacter
	}

	// 章节摘要页：页面标题含书名时全部段落继承该书号
	var pageOrdinal *int
	if !temporal && typeHint == entity.WikiChapterSummary {
		if num, ok := resolveTitleBookNumber(doc.Title); ok {
			pageOrdinal = &num
		}
	}

	for _, s := range sections {
		text := strings.TrimSpace(strings.Join(s.body, "\n"))
		sec := entity.Section{Title: s.title, Text: text}

		switch {
		case temporal:
			sec.Type = entity.SectionCharacter
			if m := inBookPattern.FindStringSubmatch(s.title); m != nil {
				if num, ok := entity.BookNumberForTitle(m[1]); ok {
					ord := num
					sec.Ordinal = &ord
				} else {
					warnings = append(warnings, entity.ParseWarning{
						File:    base,
						Section: s.title,
						Reason:  "unresolvable book title in temporal heading",
					})
				}
			} else {
				warnings = append(warnings, entity.ParseWarning{
					File:    base,
					Section: s.title,
					Reason:  "non-temporal heading on a temporal character page",
				})
			}

		case typeHint == entity.WikiChronology:
			sec.Type = entity.SectionChronology
			if num, ok := resolveTitleBookNumber(s.title); ok {
				ord := num
				sec.Ordinal = &ord
			}

		case typeHint == entity.WikiChapterSummary:
			sec.Type = entity.SectionChapterSummary
			sec.Ordinal = pageOrdinal

		case typeHint == entity.WikiCharacter:
			sec.Type = entity.SectionCharacter
			if !topicalHeadings[strings.ToLower(s.title)] {
				warnings = append(warnings, entity.ParseWarning{
					File:    base,
					Section: s.title,
					Reason:  "heading outside known topical vocabulary, kept as-is",
				})
			}

		default:
			sec.Type = entity.SectionConcept
			if typeHint != entity.WikiConcept && typeHint != "" {
				warnings = append(warnings, entity.ParseWarning{
					File:    base,
					Section: s.title,
					Reason:  "unclassifiable section, fell back to concept",
				})
			}
		}

		doc.Sections = append(doc.Sections, sec)
	}

	return doc, warnings, nil
}

// resolveTitleBookNumber 在标题文本内寻找可解析的书名
func resolveTitleBookNumber(title string) (int, bool) {
	if num, ok := entity.BookNumberForTitle(title); ok {
		return num, true
	}
	// 标题可能形如 "The Eye of the World Chapter Summaries"
	for num := 0; num <= entity.MaxBookNumber; num++ {
		t, _ := entity.BookTitle(num)
		if t != "" && strings.Contains(strings.ToLower(title), strings.ToLower(t)) {
			return num, true
		}
	}
	return 0, false
}
