package ingestion

import (
	"regexp"
	"strings"
)

const (
	defaultCharsPerToken = 4
	defaultTargetTokens  = 1536
	defaultMaxTokens     = 1920
)

// Chunker 按段落边界把 Section 文本切成有界大小的块
// 目标大小是建议值，硬上限是绝对值；各块拼接可还原原文（空白归一化后）。
type Chunker struct {
	targetChars int
	maxChars    int
}

// NewChunker 以 token 预算构建切分器，内部按字符近似（charsPerToken 字符/词元）
func NewChunker(targetTokens, maxTokens, charsPerToken int) *Chunker {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	if targetTokens <= 0 {
		targetTokens = defaultTargetTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Chunker{
		targetChars: targetTokens * charsPerToken,
		maxChars:    maxTokens * charsPerToken,
	}
}

// MaxChars 返回单块字符硬上限
func (c *Chunker) MaxChars() int {
	return c.maxChars
}

var paragraphSplit = regexp.MustCompile(`\n\s*\n+`)

// Split 把一段文本切成有序块序列
// 空文本产出零块；单段超过硬上限时在句边界强制切分。
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := paragraphSplit.Split(text, -1)

	var (
		chunks  []string
		current []string
		size    int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, "\n\n"))
		current = nil
		size = 0
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if len(p) > c.maxChars {
			// 超长段落独立处理：先冲洗累积块，再按句边界强切
			flush()
			for _, piece := range forceSplit(p, c.maxChars) {
				chunks = append(chunks, piece)
			}
			continue
		}

		added := len(p)
		if len(current) > 0 {
			added += 2 // 段落连接符
		}
		if size+added > c.targetChars && len(current) > 0 {
			flush()
			added = len(p)
		}
		current = append(current, p)
		size += added
	}
	flush()

	return chunks
}

var sentenceEnd = regexp.MustCompile(`[.!?]["'”’]?\s`)

// forceSplit 在不超过 max 的最近句边界切开超长段落
// 优先选择不落在引号内部的边界；完全无边界时按字符硬切。
func forceSplit(paragraph string, max int) []string {
	var out []string
	rest := paragraph
	for len(rest) > max {
		cut := bestSentenceCut(rest, max)
		if cut <= 0 {
			cut = max
		}
		out = append(out, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

// bestSentenceCut 返回 max 以内最靠后的一个可接受句边界
func bestSentenceCut(s string, max int) int {
	window := s
	if len(window) > max {
		window = window[:max]
	}
	matches := sentenceEnd.FindAllStringIndex(window, -1)
	if len(matches) == 0 {
		return 0
	}

	best := 0
	bestQuoted := 0
	for _, m := range matches {
		end := m[1]
		if insideQuote(window[:end]) {
			if end > bestQuoted {
				bestQuoted = end
			}
			continue
		}
		if end > best {
			best = end
		}
	}
	if best > 0 {
		return best
	}
	// 所有边界都在引号里时退而求其次
	return bestQuoted
}

// insideQuote 判断前缀结束处是否处于未闭合的双引号内
func insideQuote(prefix string) bool {
	open := 0
	for _, r := range prefix {
		switch r {
		case '"':
			open ^= 1
		case '“':
			open++
		case '”':
			if open > 0 {
				open--
			}
		}
	}
	return open != 0
}
