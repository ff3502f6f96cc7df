package retrieval

import (
	"sort"
	"strings"
	"unicode/utf8"

	"dragons-codex/internal/domain/entity"
)

const defaultContextBudget = 12000

// Assembler 把排序后的检索结果拼装为可注入提示词的上下文文本
type Assembler struct {
	budget int
}

// NewAssembler budget 为上下文字符预算，<=0 时取默认值
func NewAssembler(budget int) *Assembler {
	if budget <= 0 {
		budget = defaultContextBudget
	}
	return &Assembler{budget: budget}
}

type lineageGroup struct {
	key      string
	bestRank int
	chunks   []ScoredChunk
}

// Assemble 按相关性贪心选块，再按来源谱系重排
// 同一章节/页面的块聚在一起并按原文顺序排列，避免上下文里前后颠倒。
// degraded 透传检索层的降级原因，空串表示正常。
func (a *Assembler) Assemble(results []ScoredChunk, degraded string) *ContextResult {
	res := &ContextResult{Degraded: degraded}
	if len(results) == 0 {
		return res
	}

	// 贪心装箱：按排名依次纳入，放不下的跳过并标记截断
	sepLen := len("\n\n")
	used := 0
	var selected []ScoredChunk
	for _, r := range results {
		cost := len(r.Chunk.Text)
		if len(selected) > 0 {
			cost += sepLen
		}
		if used+cost > a.budget {
			res.Truncated = true
			continue
		}
		used += cost
		selected = append(selected, r)
	}
	if len(selected) == 0 {
		// 预算连单块都装不下：截断首块而不是返回空
		first := results[0]
		text := first.Chunk.Text
		if len(text) > a.budget {
			// 回退到最近的 rune 边界，避免截出无效 UTF-8
			cut := a.budget
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		res.Text = text
		res.ChunkIDs = []string{first.Chunk.ChunkID}
		res.Truncated = true
		return res
	}

	groups := groupByLineage(selected)

	var sb strings.Builder
	ids := make([]string, 0, len(selected))
	for gi, g := range groups {
		if gi > 0 {
			sb.WriteString("\n\n")
		}
		for ci, sc := range g.chunks {
			if ci > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(sc.Chunk.Text)
			ids = append(ids, sc.Chunk.ChunkID)
		}
	}

	res.Text = sb.String()
	res.ChunkIDs = ids
	return res
}

// groupByLineage 按谱系分组，组间按最佳成员排名排序，组内按原文顺序
func groupByLineage(selected []ScoredChunk) []*lineageGroup {
	index := make(map[string]*lineageGroup)
	var groups []*lineageGroup
	for rank, sc := range selected {
		key := sc.Chunk.LineageKey()
		g, ok := index[key]
		if !ok {
			g = &lineageGroup{key: key, bestRank: rank}
			index[key] = g
			groups = append(groups, g)
		}
		g.chunks = append(g.chunks, sc)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].bestRank < groups[j].bestRank
	})
	for _, g := range groups {
		sortWithinLineage(g.chunks)
	}
	return groups
}

func sortWithinLineage(chunks []ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return orderOf(chunks[i].Chunk) < orderOf(chunks[j].Chunk)
	})
}

func orderOf(c *entity.Chunk) int {
	return c.OrderInLineage()
}
