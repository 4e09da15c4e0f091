package pause

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"subsync/pkg/contract"
)

const (
	// DefaultMaxChars: 单块字符上限默认值。
	DefaultMaxChars = 4000
	// DefaultMinPauseMs: 优先切分的最小停顿。
	DefaultMinPauseMs = 1000
	// minPartChars: 停顿切分时前半部分的字符下限（与 30% 预算取小）。
	minPartChars = 500
)

// Options 为停顿感知分块器的可选配置；零值使用默认。
type Options struct {
	MaxChars   int   `json:"max_chars"`
	MinPauseMs int64 `json:"min_pause_ms"`
}

// Chunker 按字符预算贪心扩展，并在窗口内的最大停顿处提前收尾。
type Chunker struct {
	maxChars int
	minPause int64
}

// New 创建分块器。
func New(opts *Options) (*Chunker, error) {
	c := &Chunker{maxChars: DefaultMaxChars, minPause: DefaultMinPauseMs}
	if opts == nil {
		return c, nil
	}
	if opts.MaxChars < 0 || opts.MinPauseMs < 0 {
		return nil, fmt.Errorf("%w: chunker limits must be >= 0", contract.ErrInvalidInput)
	}
	if opts.MaxChars > 0 {
		c.maxChars = opts.MaxChars
	}
	if opts.MinPauseMs > 0 {
		c.minPause = opts.MinPauseMs
	}
	return c, nil
}

// MaxChars 返回配置的默认字符上限。
func (c *Chunker) MaxChars() int { return c.maxChars }

// BuildIndex 拼接全部非空片段并记录偏移；空白片段不进入索引。
func (c *Chunker) BuildIndex(fragments []contract.RawFragment) contract.FragmentIndex {
	var b strings.Builder
	out := make([]contract.IndexedFragment, 0, len(fragments))
	prev := ""
	runes := 0
	for _, f := range fragments {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		sep := contract.JoinSep(prev, text)
		b.WriteString(sep)
		runes += len(sep)
		start, rstart := b.Len(), runes
		b.WriteString(text)
		runes += utf8.RuneCountInString(text)
		out = append(out, contract.IndexedFragment{
			Text:      text,
			StartMs:   f.StartMs,
			EndMs:     f.EndMs(),
			CharStart: start,
			CharEnd:   b.Len(),
			RuneStart: rstart,
			RuneEnd:   runes,
		})
		prev = text
	}
	return contract.FragmentIndex{JoinedText: b.String(), Fragments: out}
}

// Split 见 contract.Chunker。
func (c *Chunker) Split(ix contract.FragmentIndex, maxChars int) []contract.Chunk {
	if maxChars <= 0 {
		maxChars = c.maxChars
	}
	frags := ix.Fragments
	n := len(frags)
	if n == 0 {
		return nil
	}
	if ix.RuneLen() <= maxChars {
		return []contract.Chunk{makeChunk(ix, 0, n-1)}
	}

	var chunks []contract.Chunk
	start := 0
	for start < n {
		base := frags[start].RuneStart
		// 贪心窗口：首个片段总是接纳（单个超长片段允许越界）
		fit := start
		for i := start + 1; i < n; i++ {
			if frags[i].RuneEnd-base > maxChars {
				break
			}
			fit = i
		}
		end := c.pauseSplit(frags, start, fit, base, maxChars)
		chunks = append(chunks, makeChunk(ix, start, end))
		start = end + 1
	}
	return chunks
}

// pauseSplit 在 [start, fit] 内寻找最大且不小于 minPause 的停顿，
// 并要求前半部分达到 min(30% 预算, 500) 字符；找不到时返回 fit。
func (c *Chunker) pauseSplit(frags []contract.IndexedFragment, start, fit, base, maxChars int) int {
	best := fit
	var maxGap int64
	for i := start + 1; i <= fit; i++ {
		gap := frags[i].StartMs - frags[i-1].EndMs
		if gap < c.minPause || gap <= maxGap {
			continue
		}
		part := frags[i-1].RuneEnd - base
		if part*10 >= maxChars*3 || part >= minPartChars {
			maxGap = gap
			best = i - 1
		}
	}
	return best
}

func makeChunk(ix contract.FragmentIndex, from, to int) contract.Chunk {
	cs, ce := ix.Fragments[from].CharStart, ix.Fragments[to].CharEnd
	return contract.Chunk{
		Text:             ix.JoinedText[cs:ce],
		CharStart:        cs,
		CharEnd:          ce,
		FragmentStartIdx: from,
		FragmentEndIdx:   to,
	}
}

var _ contract.Chunker = (*Chunker)(nil)
