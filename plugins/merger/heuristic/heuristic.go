package heuristic

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"subsync/internal/timeline"
	"subsync/pkg/contract"
)

// 默认阈值。
const (
	DefaultPauseThresholdMs = 300
	DefaultMaxSentenceChars = 80
	DefaultMaxFragments     = 12
)

// Options 为启发式合并器的可选配置；零值使用默认阈值。
type Options struct {
	// PauseThresholdMs: 相邻片段间隔达到该值即断句。
	PauseThresholdMs int64 `json:"pause_threshold_ms"`
	// MaxSentenceChars: 单句字符上限（按字符计，含拼接空格）。
	MaxSentenceChars int `json:"max_sentence_chars"`
	// MaxFragments: 单句最多容纳的片段数。
	MaxFragments int `json:"max_fragments"`
}

// Merger 按停顿/长度/片段数/句末标点将片段合并为句子。
type Merger struct {
	pause    int64
	maxChars int
	maxFrags int
}

// New 创建合并器；负值视为配置错误。
func New(opts *Options) (*Merger, error) {
	m := &Merger{pause: DefaultPauseThresholdMs, maxChars: DefaultMaxSentenceChars, maxFrags: DefaultMaxFragments}
	if opts == nil {
		return m, nil
	}
	if opts.PauseThresholdMs < 0 || opts.MaxSentenceChars < 0 || opts.MaxFragments < 0 {
		return nil, fmt.Errorf("%w: merger thresholds must be >= 0", contract.ErrInvalidInput)
	}
	if opts.PauseThresholdMs > 0 {
		m.pause = opts.PauseThresholdMs
	}
	if opts.MaxSentenceChars > 0 {
		m.maxChars = opts.MaxSentenceChars
	}
	if opts.MaxFragments > 0 {
		m.maxFrags = opts.MaxFragments
	}
	return m, nil
}

// acc: 当前句累积状态。
type acc struct {
	text    string
	runes   int
	count   int
	start   int64
	end     int64
	lastEnd int64
}

func (a *acc) empty() bool { return a.count == 0 }

func (a *acc) add(f contract.RawFragment, text string) {
	if a.count == 0 {
		a.text, a.runes = text, utf8.RuneCountInString(text)
		a.start, a.end = f.StartMs, f.EndMs()
	} else {
		sep := contract.JoinSep(a.text, text)
		a.text += sep + text
		a.runes += len(sep) + utf8.RuneCountInString(text)
		if e := f.EndMs(); e > a.end {
			a.end = e
		}
	}
	a.lastEnd = f.EndMs()
	a.count++
}

// Merge 见 contract.Merger。
func (m *Merger) Merge(fragments []contract.RawFragment) []contract.Sentence {
	out := make([]contract.Sentence, 0, len(fragments)/4+1)
	var cur acc
	flush := func() {
		if cur.empty() {
			return
		}
		out = append(out, contract.Sentence{Text: cur.text, StartMs: cur.start, EndMs: cur.end})
		cur = acc{}
	}
	for _, f := range fragments {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		// 预断句：基于尚未包含当前片段的累积状态判定
		if !cur.empty() && m.breakBefore(&cur, f, text) {
			flush()
		}
		cur.add(f, text)
		// 后断句：句末标点立即收尾
		if contract.EndsSentence(text) {
			flush()
		}
	}
	flush()
	timeline.GapFill(out)
	return out
}

// breakBefore 依优先级判定：停顿、字符预算、片段数。
func (m *Merger) breakBefore(cur *acc, f contract.RawFragment, text string) bool {
	if f.StartMs-cur.lastEnd >= m.pause {
		return true
	}
	if cur.runes+utf8.RuneCountInString(text)+1 > m.maxChars {
		return true
	}
	return cur.count >= m.maxFrags
}
