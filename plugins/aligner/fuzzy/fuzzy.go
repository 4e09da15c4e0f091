package fuzzy

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"subsync/pkg/contract"
)

// Options: 对齐器配置。
type Options struct {
	// DisableFullStrip: 仅剥离尾部标点，不再尝试剥离全部标点。
	DisableFullStrip bool `json:"disable_full_strip"`
}

// Aligner 依次尝试精确、大小写不敏感、去标点与按比例回退四种策略，
// 将译文段映射回片段时间轴。无状态，可并发使用。
type Aligner struct {
	fullStrip bool
}

// New 创建对齐器。
func New(opts *Options) *Aligner {
	a := &Aligner{fullStrip: true}
	if opts != nil && opts.DisableFullStrip {
		a.fullStrip = false
	}
	return a
}

// Map 见 contract.Aligner。索引为空时无法给出时间戳，返回空切片。
func (a *Aligner) Map(segments []contract.TranslatedSegment, ix contract.FragmentIndex, chunkCharStart int) []contract.Sentence {
	if len(ix.Fragments) == 0 {
		return nil
	}
	joined := ix.JoinedText
	cursor := clampBoundary(joined, chunkCharStart)
	out := make([]contract.Sentence, 0, len(segments))
	for _, seg := range segments {
		orig := strings.TrimSpace(seg.Original)
		tr := strings.TrimSpace(seg.Translated)
		if orig == "" && tr == "" {
			continue
		}
		start, end, how := a.locate(joined, orig, cursor)
		s := span(ix, start, end)
		s.Translation = tr
		s.Match = how
		out = append(out, s)
		if end > cursor {
			cursor = end
		}
	}
	return out
}

// locate 返回 [start,end) 字节区间及命中策略。
func (a *Aligner) locate(joined, orig string, from int) (int, int, contract.MatchStrategy) {
	if orig != "" {
		if i := strings.Index(joined[from:], orig); i >= 0 {
			return from + i, from + i + len(orig), contract.MatchExact
		}
		if s, e, ok := indexFold(joined, orig, from); ok {
			return s, e, contract.MatchFold
		}
		for _, c := range a.stripped(orig) {
			if s, e, ok := indexFold(joined, c, from); ok {
				return s, e, contract.MatchStripped
			}
		}
	}
	// 按比例回退：span = round(len(orig)/len(joined) * len(joined))，至少 1
	n := len(orig)
	if n < 1 {
		n = 1
	}
	end := from + n
	if end > len(joined) {
		end = len(joined)
	}
	return from, clampBoundary(joined, end), contract.MatchProportional
}

func isStripPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '\'', '"', '(', ')', '。', '！', '？', '，', '、', '；', '：':
		return true
	}
	return false
}

// stripped 生成去标点候选：先剥离尾部，再（可选）剥离全部。
func (a *Aligner) stripped(orig string) []string {
	out := make([]string, 0, 2)
	tail := strings.TrimSpace(strings.TrimRightFunc(orig, func(r rune) bool {
		return isStripPunct(r) || unicode.IsSpace(r)
	}))
	if tail != "" && tail != orig {
		out = append(out, tail)
	}
	if a.fullStrip {
		all := strings.TrimSpace(strings.Map(func(r rune) rune {
			if isStripPunct(r) {
				return -1
			}
			return r
		}, orig))
		if all != "" && all != orig && all != tail {
			out = append(out, all)
		}
	}
	return out
}

// indexFold 自 from 起查找 needle 的大小写不敏感匹配，返回原文中的字节区间。
func indexFold(h, needle string, from int) (int, int, bool) {
	if needle == "" {
		return 0, 0, false
	}
	for i := from; i < len(h); {
		if end, ok := matchFoldAt(h, i, needle); ok {
			return i, end, true
		}
		_, sz := utf8.DecodeRuneInString(h[i:])
		i += sz
	}
	return 0, 0, false
}

func matchFoldAt(h string, i int, needle string) (int, bool) {
	j := i
	for _, nr := range needle {
		if j >= len(h) {
			return 0, false
		}
		hr, sz := utf8.DecodeRuneInString(h[j:])
		if !foldEq(hr, nr) {
			return 0, false
		}
		j += sz
	}
	return j, true
}

func foldEq(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

// span 收集与 [start,end) 重叠的片段；无重叠时取游标处（或末尾）最近的片段。
func span(ix contract.FragmentIndex, start, end int) contract.Sentence {
	frags := ix.Fragments
	first := sort.Search(len(frags), func(i int) bool { return frags[i].CharEnd > start })
	last := first - 1
	for i := first; i < len(frags) && frags[i].CharStart < end; i++ {
		last = i
	}
	if last < first {
		if first == len(frags) {
			first = len(frags) - 1
		}
		last = first
	}
	texts := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		texts = append(texts, frags[i].Text)
	}
	s := contract.Sentence{
		Text:    contract.JoinAll(texts),
		StartMs: frags[first].StartMs,
		EndMs:   frags[last].EndMs,
	}
	if s.EndMs < s.StartMs {
		s.EndMs = s.StartMs
	}
	return s
}

// clampBoundary 将偏移限制在 [0,len] 并前移到 rune 边界。
func clampBoundary(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

var _ contract.Aligner = (*Aligner)(nil)
