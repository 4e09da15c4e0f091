package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"subsync/pkg/contract"
)

// DefaultURL: 免费 gtx 端点。
const DefaultURL = "https://translate.googleapis.com/translate_a/single"

// Options: 最小必需配置。
type Options struct {
	BaseURL        string `json:"base_url"`        // 默认 DefaultURL
	SourceLang     string `json:"source_lang"`     // 默认 auto
	TimeoutSeconds int    `json:"timeout_seconds"` // client 级超时（秒），默认 30
	// RetryAfterMs: 429 后等待多久重试一次；默认 2000，< 0 表示不重试。
	RetryAfterMs int               `json:"retry_after_ms"`
	ExtraHeaders map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultURL
	}
	if o.SourceLang == "" {
		o.SourceLang = "auto"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 30
	}
	if o.RetryAfterMs == 0 {
		o.RetryAfterMs = 2000
	}
}

// Client: 分段翻译客户端（单次 POST，429 时按固定间隔重试一次）。
type Client struct {
	url    string
	sl     string
	retry  time.Duration
	extraH map[string]string
	do     func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("google options: %w", err)
		}
	}
	opts.defaults()
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("google: %w: base_url: %v", contract.ErrInvalidInput, err)
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	var retry time.Duration
	if opts.RetryAfterMs > 0 {
		retry = time.Duration(opts.RetryAfterMs) * time.Millisecond
	}
	return &Client{url: opts.BaseURL, sl: opts.SourceLang, retry: retry, extraH: opts.ExtraHeaders, do: hc.Do}, nil
}

// upstreamError 实现 net.Error，用于将 5xx/408 归为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("google upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// TranslateChunk 返回 Google 的句级分段：data[0] = [[translated, original, ...], ...]。
func (c *Client) TranslateChunk(ctx context.Context, text, targetLang string) ([]contract.TranslatedSegment, error) {
	data, err := c.call(ctx, text, targetLang)
	if err != nil {
		return nil, err
	}
	rows, err := rowsOf(data)
	if err != nil {
		return nil, err
	}
	out := make([]contract.TranslatedSegment, 0, len(rows))
	for _, r := range rows {
		tr, orig := cell(r, 0), cell(r, 1)
		if tr == "" && orig == "" {
			continue
		}
		out = append(out, contract.TranslatedSegment{Original: strings.TrimSpace(orig), Translated: strings.TrimSpace(tr)})
	}
	return out, nil
}

// TranslateLines 以 \n 拼接为单次请求，再按行拆回；行数不足时缺失行为空串。
func (c *Client) TranslateLines(ctx context.Context, lines []string, targetLang string) ([]string, error) {
	out := make([]string, len(lines))
	if len(lines) == 0 {
		return out, nil
	}
	clean := make([]string, len(lines))
	for i, l := range lines {
		clean[i] = strings.TrimSpace(strings.ReplaceAll(l, "\n", " "))
	}
	data, err := c.call(ctx, strings.Join(clean, "\n"), targetLang)
	if err != nil {
		return nil, err
	}
	rows, err := rowsOf(data)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(cell(r, 0))
	}
	got := strings.Split(strings.TrimSpace(sb.String()), "\n")
	for i := 0; i < len(out) && i < len(got); i++ {
		out[i] = strings.TrimSpace(got[i])
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, text, targetLang string) ([]json.RawMessage, error) {
	if strings.TrimSpace(targetLang) == "" {
		return nil, fmt.Errorf("google: %w: empty target language", contract.ErrInvalidInput)
	}
	form := url.Values{}
	form.Set("client", "gtx")
	form.Set("sl", c.sl)
	form.Set("tl", targetLang)
	form.Set("dt", "t")
	form.Set("q", text)
	body := form.Encode()

	tries := uint(1)
	if c.retry > 0 {
		tries = 2
	}
	return backoff.Retry(ctx, func() ([]json.RawMessage, error) {
		resp, err := c.post(ctx, body)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return nil, contract.ErrRateLimited
		}
		data, err := decode(resp)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return data, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(c.retry)), backoff.WithMaxTries(tries))
}

// decode 校验状态码并解析响应体；5xx/408 归为上游错误，其余非 2xx 视为请求无效。
func decode(resp *http.Response) ([]json.RawMessage, error) {
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return nil, upstreamError{status: resp.StatusCode, msg: msg}
		}
		return nil, fmt.Errorf("google upstream %d: %w", resp.StatusCode, contract.ErrInvalidInput)
	}
	var data []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode: %w", contract.ErrResponseInvalid)
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, body string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range c.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, err
	}
	return resp, nil
}

// rowsOf 解析 data[0]；null 视为空结果。
func rowsOf(data []json.RawMessage) ([][]json.RawMessage, error) {
	if len(data) == 0 || string(data[0]) == "null" {
		return nil, nil
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data[0], &rows); err != nil {
		return nil, fmt.Errorf("segments: %w", contract.ErrResponseInvalid)
	}
	return rows, nil
}

// cell 读取第 i 列字符串；缺失/非字符串返回空串。
func cell(row []json.RawMessage, i int) string {
	if i >= len(row) {
		return ""
	}
	var s string
	if json.Unmarshal(row[i], &s) != nil {
		return ""
	}
	return s
}

var (
	_ contract.Translator     = (*Client)(nil)
	_ contract.LineTranslator = (*Client)(nil)
)
