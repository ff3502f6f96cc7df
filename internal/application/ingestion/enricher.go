package ingestion

import (
	"sort"
	"unicode"
	"unicode/utf8"

	"dragons-codex/internal/domain/entity"
)

// aliasEntry 一个别名及其归属的规范名
type aliasEntry struct {
	alias     string
	canonical string
}

// Enricher 用别名索引为块填充提及元数据
// 纯函数式：相同输入必得相同输出，可被多 worker 无锁共享。
type Enricher struct {
	characters []aliasEntry
	concepts   []aliasEntry
	magic      []aliasEntry
}

// NewEnricher 预编译别名表：按别名长度降序排列，
// 保证逐位置扫描时长别名优先于其前缀短别名（longest-match-wins）。
func NewEnricher(idx *entity.MentionIndex) *Enricher {
	return &Enricher{
		characters: compileAliases(idx.Characters),
		concepts:   compileAliases(idx.Concepts),
		magic:      compileAliases(idx.Magic),
	}
}

func compileAliases(table entity.AliasTable) []aliasEntry {
	var entries []aliasEntry
	for canonical, aliases := range table {
		for _, a := range aliases {
			if a == "" {
				continue
			}
			entries = append(entries, aliasEntry{alias: a, canonical: canonical})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].alias) != len(entries[j].alias) {
			return len(entries[i].alias) > len(entries[j].alias)
		}
		return entries[i].alias < entries[j].alias
	})
	return entries
}

// Enrich 填充块的三类提及列表并返回同一块
func (e *Enricher) Enrich(c *entity.Chunk) *entity.Chunk {
	c.SetMentions(
		scanMentions(c.Text, e.characters),
		scanMentions(c.Text, e.concepts),
		scanMentions(c.Text, e.magic),
	)
	return c
}

// scanMentions 逐位置扫描文本，整词、大小写敏感匹配
// 每个位置最多命中一个别名（候选按长度降序），命中后跳过整个别名。
func scanMentions(text string, entries []aliasEntry) []string {
	if len(entries) == 0 || text == "" {
		return nil
	}
	seen := map[string]bool{}
	for i := 0; i < len(text); {
		if !boundaryBefore(text, i) {
			i++
			continue
		}
		matched := 0
		for _, entry := range entries {
			n := len(entry.alias)
			if i+n > len(text) || text[i:i+n] != entry.alias {
				continue
			}
			if !boundaryAfter(text, i+n) {
				continue
			}
			seen[entry.canonical] = true
			matched = n
			break
		}
		if matched > 0 {
			i += matched
		} else {
			i++
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// boundaryBefore 判断偏移 i 前一字符是否为非字母数字（即可作匹配起点）
func boundaryBefore(text string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// boundaryAfter 判断偏移 i 处字符是否为非字母数字（即可作匹配终点）
func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
