package ingestion

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"dragons-codex/internal/domain/entity"
)

var (
	bookFilePattern    = regexp.MustCompile(`^(\d{2})-(.+)\.txt$`)
	chapterLinePattern = regexp.MustCompile(`^CHAPTER(?:\s+(\d+))?$`)
)

// ParseBook 将一个 `NN-Title.txt` 源文件解析为结构化 Document
// 结构标记 PROLOGUE / CHAPTER / EPILOGUE 各自起一个 Section，
// 尾部 GLOSSARY 块单独解析为术语条目，不作为普通 Section。
func ParseBook(filename, raw string) (*entity.Document, []entity.ParseWarning, error) {
	base := filepath.Base(filename)
	m := bookFilePattern.FindStringSubmatch(base)
	if m == nil {
		return nil, nil, &ParseError{File: base, Reason: "filename does not match NN-Title.txt"}
	}
	bookNumber, _ := strconv.Atoi(m[1])
	title := strings.ReplaceAll(m[2], "_", " ")

	doc := &entity.Document{
		SourceType: entity.SourceBook,
		Identifier: base,
		Title:      title,
		BookNumber: bookNumber,
	}
	var warnings []entity.ParseWarning

	lines := strings.Split(raw, "\n")

	type openSection struct {
		title   string
		typ     entity.SectionType
		ordinal int
		body    []string
	}
	var (
		current    *openSection
		maxOrdinal int
		nextAuto   = 1
		inGlossary bool
		glossary   []string
	)

	flush := func() {
		if current == nil {
			return
		}
		text := strings.TrimSpace(strings.Join(current.body, "\n"))
		ord := current.ordinal
		doc.Sections = append(doc.Sections, entity.Section{
			Title:   current.title,
			Type:    current.typ,
			Ordinal: &ord,
			Text:    text,
		})
		if ord > maxOrdinal {
			maxOrdinal = ord
		}
		current = nil
	}

	// 标记行后的第一个非空行是该节标题
	// 下一个非空行本身又是结构标记时视为标题缺失，避免吞掉后续章节
	readTitle := func(from int) (string, int) {
		for i := from; i < len(lines); i++ {
			t := strings.TrimSpace(lines[i])
			if t == "" {
				continue
			}
			if isStructuralMarker(t) {
				return "", -1
			}
			return t, i
		}
		return "", -1
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if inGlossary {
			glossary = append(glossary, lines[i])
			continue
		}

		switch {
		case line == "PROLOGUE":
			flush()
			title, at := readTitle(i + 1)
			if title == "" {
				return nil, warnings, &ParseError{File: base, Reason: "PROLOGUE marker with no title"}
			}
			current = &openSection{title: title, typ: entity.SectionPrologue, ordinal: 0}
			i = at

		case chapterLinePattern.MatchString(line):
			flush()
			cm := chapterLinePattern.FindStringSubmatch(line)
			ordinal := nextAuto
			if cm[1] != "" {
				ordinal, _ = strconv.Atoi(cm[1])
			}
			nextAuto = ordinal + 1
			title, at := readTitle(i + 1)
			if title == "" {
				return nil, warnings, &ParseError{File: base, Reason: "CHAPTER marker with no title"}
			}
			current = &openSection{title: title, typ: entity.SectionChapter, ordinal: ordinal}
			i = at

		case line == "EPILOGUE":
			flush()
			title, at := readTitle(i + 1)
			if title == "" {
				return nil, warnings, &ParseError{File: base, Reason: "EPILOGUE marker with no title"}
			}
			current = &openSection{title: title, typ: entity.SectionEpilogue, ordinal: maxOrdinal + 1}
			i = at

		case line == "GLOSSARY":
			flush()
			inGlossary = true

		default:
			if current != nil {
				current.body = append(current.body, lines[i])
			} else if line != "" {
				// 标记之前的散落文本（版权页等）忽略，但记录一次
				if len(warnings) == 0 || warnings[len(warnings)-1].Reason != "text before first structural marker" {
					warnings = append(warnings, entity.ParseWarning{
						File:   base,
						Reason: "text before first structural marker",
					})
				}
			}
		}
	}
	flush()

	if len(doc.Sections) == 0 {
		return nil, warnings, &ParseError{File: base, Reason: "no structural markers found"}
	}

	if len(glossary) > 0 {
		entries, ws := parseGlossary(base, glossary)
		doc.Glossary = entries
		warnings = append(warnings, ws...)
	}

	return doc, warnings, nil
}

// isStructuralMarker 判断一行是否为结构标记
func isStructuralMarker(line string) bool {
	switch line {
	case "PROLOGUE", "EPILOGUE", "GLOSSARY":
		return true
	}
	return chapterLinePattern.MatchString(line)
}

var pronunciationPattern = regexp.MustCompile(`^(.+?)\s*\(([^)]+)\)\s*:?\s*$`)

// parseGlossary 解析术语表：条目之间以空行分隔，
// 首行为 `Term (pronunciation):`，其余行为描述。
func parseGlossary(file string, lines []string) ([]entity.GlossaryEntry, []entity.ParseWarning) {
	var (
		entries  []entity.GlossaryEntry
		warnings []entity.ParseWarning
		block    []string
	)

	flush := func() {
		if len(block) == 0 {
			return
		}
		head := strings.TrimSpace(block[0])
		desc := strings.TrimSpace(strings.Join(block[1:], "\n"))
		block = nil

		entry := entity.GlossaryEntry{Description: desc}
		if m := pronunciationPattern.FindStringSubmatch(head); m != nil {
			entry.Term = strings.TrimSpace(m[1])
			entry.Pronunciation = strings.TrimSpace(m[2])
		} else if term, inline, ok := strings.Cut(head, ": "); ok {
			entry.Term = strings.TrimSpace(term)
			if entry.Description == "" {
				entry.Description = strings.TrimSpace(inline)
			} else {
				entry.Description = strings.TrimSpace(inline) + "\n" + entry.Description
			}
		} else {
			entry.Term = strings.TrimSuffix(head, ":")
		}
		if entry.Term == "" || entry.Description == "" {
			warnings = append(warnings, entity.ParseWarning{
				File:    file,
				Section: "GLOSSARY",
				Reason:  "glossary entry missing term or description: " + head,
			})
			return
		}
		entries = append(entries, entry)
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()

	return entries, warnings
}
