package srt

import (
	"context"
	"fmt"
	"io"
	"strings"

	"subsync/pkg/contract"
)

// Options: SRT 导出配置。
type Options struct {
	// Mode: bilingual（默认，原文行 + 译文行）/ original / translation。
	Mode string `json:"mode"`
	// TranslationFirst: 双语模式下译文在上。
	TranslationFirst bool `json:"translation_first"`
}

type Assembler struct {
	mode       contract.DisplayMode
	transFirst bool
}

func New(opts *Options) (*Assembler, error) {
	a := &Assembler{}
	if opts == nil {
		return a, nil
	}
	m, err := contract.ParseDisplayMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	a.mode = m
	a.transFirst = opts.TranslationFirst
	return a, nil
}

// Assemble 校验时间轴（StartMs 非降序、EndMs >= StartMs）后逐条渲染 SRT 块。
// 译文模式下无译文的句子回退显示原文；渲染结果为空的句子跳过且不占序号。
func (a *Assembler) Assemble(ctx context.Context, fileID contract.FileID, sentences []contract.Sentence) (io.Reader, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	for i, s := range sentences {
		if s.EndMs < s.StartMs {
			return nil, fmt.Errorf("%s: sentence %d ends before it starts: %w", fileID, i, contract.ErrInvariantViolation)
		}
		if i > 0 && s.StartMs < sentences[i-1].StartMs {
			return nil, fmt.Errorf("%s: sentence %d out of order: %w", fileID, i, contract.ErrInvariantViolation)
		}
	}
	var b strings.Builder
	seq := 0
	for _, s := range sentences {
		lines := a.lines(s)
		if len(lines) == 0 {
			continue
		}
		seq++
		fmt.Fprintf(&b, "%d\n%s --> %s\n", seq, FormatTimestamp(s.StartMs), FormatTimestamp(s.EndMs))
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return strings.NewReader(b.String()), nil
}

var _ contract.Assembler = (*Assembler)(nil)

func (a *Assembler) lines(s contract.Sentence) []string {
	orig := strings.TrimSpace(s.Text)
	tr := strings.TrimSpace(s.Translation)
	switch a.mode {
	case contract.DisplayOriginal:
		return nonEmpty(orig)
	case contract.DisplayTranslation:
		if tr == "" {
			return nonEmpty(orig)
		}
		return nonEmpty(tr)
	default:
		if a.transFirst {
			return nonEmpty(tr, orig)
		}
		return nonEmpty(orig, tr)
	}
}

func nonEmpty(ss ...string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FormatTimestamp 以 SRT 格式 HH:MM:SS,mmm 输出毫秒时间；负值按 0 处理。
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}
