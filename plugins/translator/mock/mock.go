package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"subsync/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	Prefix string `json:"prefix"` // 译文前缀，默认 "MOCK"
	// APIKey: 仅用于限流分组（调试用），不参与任何网络请求。
	APIKey string `json:"api_key"`
	// Mode: 分段方式。
	//  - "" / "sentences": 按句末标点切分，原文原样返回（精确命中）；
	//  - "whole": 整块作为一个段；
	//  - "paraphrase": 原文转为小写并去掉句末标点（用于覆盖模糊匹配路径）。
	Mode string `json:"mode,omitempty"`
	// DelayMs: 每次调用的模拟延迟。
	DelayMs int `json:"delay_ms,omitempty"`
}

// Client: 无网络的占位翻译器。
type Client struct {
	prefix string
	mode   string
	delay  time.Duration
}

// New 从原样 JSON 选项构造（严格字段）。
func New(raw json.RawMessage) (*Client, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	if o.Prefix == "" {
		o.Prefix = "MOCK"
	}
	switch o.Mode {
	case "", "sentences", "whole", "paraphrase":
	default:
		return nil, fmt.Errorf("mock: %w: unknown mode %q", contract.ErrInvalidInput, o.Mode)
	}
	return &Client{prefix: o.Prefix, mode: o.Mode, delay: time.Duration(o.DelayMs) * time.Millisecond}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TranslateChunk 实现 contract.Translator。
func (c *Client) TranslateChunk(ctx context.Context, text, targetLang string) ([]contract.TranslatedSegment, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var parts []string
	if c.mode == "whole" {
		parts = []string{strings.TrimSpace(text)}
	} else {
		parts = SplitSentences(text)
	}
	out := make([]contract.TranslatedSegment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		orig := p
		if c.mode == "paraphrase" {
			orig = strings.ToLower(strings.TrimRight(p, ".!?。！？"))
		}
		out = append(out, contract.TranslatedSegment{Original: orig, Translated: c.render(targetLang, p)})
	}
	return out, nil
}

// TranslateLines 实现 contract.LineTranslator。
func (c *Client) TranslateLines(ctx context.Context, lines []string, targetLang string) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out[i] = c.render(targetLang, l)
	}
	return out, nil
}

func (c *Client) render(lang, s string) string {
	if lang == "" {
		return c.prefix + ": " + s
	}
	return fmt.Sprintf("%s[%s]: %s", c.prefix, lang, s)
}

// SplitSentences 在句末标点之后切分（保留标点），去除首尾空白。
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, sz := utf8.DecodeRuneInString(text[i:])
		i += sz
		if !isEnd(r) {
			continue
		}
		// 连续标点归入同一句
		for i < len(text) {
			r2, sz2 := utf8.DecodeRuneInString(text[i:])
			if !isEnd(r2) {
				break
			}
			i += sz2
		}
		if s := strings.TrimSpace(text[start:i]); s != "" {
			out = append(out, s)
		}
		start = i
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

var (
	_ contract.Translator     = (*Client)(nil)
	_ contract.LineTranslator = (*Client)(nil)
)
