package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"subsync/pkg/contract"
	"subsync/plugins/prompt/segment"
)

// Options: OpenAI 兼容 chat/completions 端点的最小配置。
type Options struct {
	BaseURL        string   `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string   `json:"model"`           // 为空则使用默认
	APIKeyEnv      string   `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string   `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int      `json:"timeout_seconds"` // 可选 client 级超时（秒）
	Temperature    *float64 `json:"temperature,omitempty"`
	// 第三方兼容（最小）：
	EndpointPath       string            `json:"endpoint_path"`        // 覆盖默认 /chat/completions；可为完整 URL
	DisableDefaultAuth bool              `json:"disable_default_auth"` // 关闭默认 Authorization: Bearer 注入
	ExtraHeaders       map[string]string `json:"extra_headers"`
	// MaxRetries: 限流、5xx、网络错误与无效响应的重试次数；0 表示不重试。
	MaxRetries int `json:"max_retries"`
	// RetryInitialMs: 指数退避初始间隔，默认 500。
	RetryInitialMs int `json:"retry_initial_ms"`
	// Prompt: 分段提示词配置。
	Prompt *segment.Options `json:"prompt,omitempty"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.RetryInitialMs <= 0 {
		o.RetryInitialMs = 500
	}
}

// Client: 借助大模型完成“断句 + 翻译”的翻译器。
type Client struct {
	url         string
	apiKey      string
	temp        *float64
	model       string
	extraH      map[string]string
	disableAuth bool
	pb          contract.PromptBuilder
	do          func(*http.Request) (*http.Response, error)
	tries       uint
	initial     time.Duration
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("llm options: %w", err)
		}
	}
	opts.defaults()
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("llm: %w: max_retries < 0", contract.ErrInvalidInput)
	}
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" && !opts.DisableDefaultAuth {
		return nil, fmt.Errorf("llm: %w: missing api key", contract.ErrInvalidInput)
	}
	pb, err := segment.New(opts.Prompt)
	if err != nil {
		return nil, fmt.Errorf("llm prompt: %w", err)
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	fullURL := opts.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		fullURL = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	return &Client{
		url:         fullURL,
		apiKey:      key,
		temp:        opts.Temperature,
		model:       opts.Model,
		extraH:      opts.ExtraHeaders,
		disableAuth: opts.DisableDefaultAuth,
		pb:          pb,
		do:          hc.Do,
		tries:       uint(opts.MaxRetries) + 1,
		initial:     time.Duration(opts.RetryInitialMs) * time.Millisecond,
	}, nil
}

// PromptBuilder 暴露内部构造器，供编排层估算固定开销。
func (c *Client) PromptBuilder() contract.PromptBuilder { return c.pb }

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaReq struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ResponseFormat *oaResponseFormat `json:"response_format,omitempty"`
}

type oaResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type oaResponseFormat struct {
	Type       string        `json:"type"` // "json_object" or "json_schema"
	JSONSchema *oaJSONSchema `json:"json_schema,omitempty"`
}

type oaJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict,omitempty"`
}

// upstreamError 实现 net.Error，用于将 HTTP 上游 5xx/408 映射为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("llm upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// encodePrompt 将 ChatPrompt 编码为请求体；role=json_schema 的消息转为 response_format。
func (c *Client) encodePrompt(p contract.Prompt) ([]byte, error) {
	req := oaReq{Model: c.model, Temperature: c.temp}
	switch v := p.(type) {
	case contract.TextPrompt:
		req.Messages = []oaMessage{{Role: "user", Content: string(v)}}
	case contract.ChatPrompt:
		req.Messages = make([]oaMessage, 0, len(v))
		for _, m := range v {
			if strings.EqualFold(strings.TrimSpace(m.Role), "json_schema") {
				var raw json.RawMessage
				if json.Unmarshal([]byte(m.Content), &raw) == nil && len(raw) > 0 {
					req.ResponseFormat = &oaResponseFormat{Type: "json_schema", JSONSchema: &oaJSONSchema{Name: "segments", Schema: raw, Strict: true}}
				}
				continue
			}
			req.Messages = append(req.Messages, oaMessage{Role: m.Role, Content: m.Content})
		}
	default:
		return nil, contract.ErrInvalidInput
	}
	return json.Marshal(&req)
}

// TranslateChunk 实现 contract.Translator。
func (c *Client) TranslateChunk(ctx context.Context, text, targetLang string) ([]contract.TranslatedSegment, error) {
	p, err := c.pb.Build(ctx, text, targetLang)
	if err != nil {
		return nil, err
	}
	body, err := c.encodePrompt(p)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	return backoff.Retry(ctx, func() ([]contract.TranslatedSegment, error) {
		content, err := c.invoke(ctx, body)
		if err != nil {
			return nil, retryable(err)
		}
		segs, err := DecodeSegments(content)
		if err != nil {
			return nil, retryable(err)
		}
		return segs, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.tries))
}

// retryable 将不可重试的错误标记为 Permanent：非法请求与取消。
func retryable(err error) error {
	if errors.Is(err, contract.ErrInvalidInput) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}

func (c *Client) invoke(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	if !c.disableAuth {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", contract.ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(slurp))
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode/100 == 5 {
			return "", upstreamError{status: resp.StatusCode, msg: msg}
		}
		return "", fmt.Errorf("llm upstream %d: %w", resp.StatusCode, contract.ErrInvalidInput)
	}
	var or oaResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", fmt.Errorf("decode: %w", contract.ErrResponseInvalid)
	}
	if len(or.Choices) == 0 || or.Choices[0].Message.Content == "" {
		return "", contract.ErrResponseInvalid
	}
	return or.Choices[0].Message.Content, nil
}

// DecodeSegments 解析模型输出：{"segments":[...]} 或裸数组，容忍 ``` 代码围栏。
func DecodeSegments(content string) ([]contract.TranslatedSegment, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	var segs []contract.TranslatedSegment
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &segs); err != nil {
			return nil, fmt.Errorf("decode segments: %w", contract.ErrResponseInvalid)
		}
	} else {
		var wrap struct {
			Segments []contract.TranslatedSegment `json:"segments"`
		}
		if err := json.Unmarshal([]byte(s), &wrap); err != nil {
			return nil, fmt.Errorf("decode segments: %w", contract.ErrResponseInvalid)
		}
		segs = wrap.Segments
	}
	segs = contract.CleanSegments(segs)
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty segments: %w", contract.ErrResponseInvalid)
	}
	return segs, nil
}

var _ contract.Translator = (*Client)(nil)
