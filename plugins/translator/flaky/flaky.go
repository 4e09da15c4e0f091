package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"subsync/pkg/contract"
	"subsync/plugins/translator/mock"
)

// Options 定义可选项。
type Options struct {
	Prefix string `json:"prefix"`
	// FailCalls: 按调用序号（从 1 开始）注入失败；奇数位返回 ErrRateLimited，偶数位返回 ErrResponseInvalid。
	// 为 nil 时默认 [1,2]。
	FailCalls []int `json:"fail_calls"`
	// FailContaining: 块文本包含该子串时总是失败（并发下可确定复现）。
	FailContaining string `json:"fail_containing,omitempty"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Client 是带状态的故障注入翻译器，成功时委托 mock 产出占位译文。
type Client struct {
	inner    *mock.Client
	failAt   map[int]int
	contains string
	logPath  string
	count    atomic.Int32
}

// New 构造 Client。
func New(raw json.RawMessage) (*Client, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	if o.Prefix == "" {
		o.Prefix = "FLAKY"
	}
	if o.FailCalls == nil {
		o.FailCalls = []int{1, 2}
	}
	inner, err := mock.New(json.RawMessage(fmt.Sprintf(`{"prefix":%q}`, o.Prefix)))
	if err != nil {
		return nil, err
	}
	fa := make(map[int]int, len(o.FailCalls))
	for i, n := range o.FailCalls {
		fa[n] = i
	}
	return &Client{inner: inner, failAt: fa, contains: o.FailContaining, logPath: o.LogPath}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

func (c *Client) inject(text string) error {
	n := int(c.count.Add(1))
	if c.contains != "" && strings.Contains(text, c.contains) {
		c.log("fail_containing")
		return fmt.Errorf("flaky: injected failure: %w", contract.ErrResponseInvalid)
	}
	if pos, ok := c.failAt[n]; ok {
		if pos%2 == 0 {
			c.log("rate_limited")
			return contract.ErrRateLimited
		}
		c.log("invalid_response")
		return fmt.Errorf("flaky: %w", contract.ErrResponseInvalid)
	}
	c.log("ok")
	return nil
}

// Calls 返回累计调用次数。
func (c *Client) Calls() int { return int(c.count.Load()) }

// TranslateChunk 实现 contract.Translator。
func (c *Client) TranslateChunk(ctx context.Context, text, targetLang string) ([]contract.TranslatedSegment, error) {
	if err := c.inject(text); err != nil {
		return nil, err
	}
	return c.inner.TranslateChunk(ctx, text, targetLang)
}

// TranslateLines 实现 contract.LineTranslator。
func (c *Client) TranslateLines(ctx context.Context, lines []string, targetLang string) ([]string, error) {
	if err := c.inject(strings.Join(lines, "\n")); err != nil {
		return nil, err
	}
	return c.inner.TranslateLines(ctx, lines, targetLang)
}

var (
	_ contract.Translator     = (*Client)(nil)
	_ contract.LineTranslator = (*Client)(nil)
)
