package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"subsync/pkg/contract"
	"subsync/plugins/prompt/segment"
	"subsync/plugins/translator/llm"
)

// Options: Google Generative Language API (Gemini)。
type Options struct {
	BaseURL        string `json:"base_url"`    // https://generativelanguage.googleapis.com
	Model          string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv      string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	// 可覆盖默认 /v1beta/models/{model}:generateContent；支持 {model} 占位
	EndpointPath  string            `json:"endpoint_path"`
	APIKeyInQuery *bool             `json:"api_key_in_query"` // 默认 true；false 时使用 x-goog-api-key 头
	ExtraHeaders  map[string]string `json:"extra_headers"`
	// 仅当提示词携带 schema 时生效；为空则为 application/json
	ResponseMIMEType string           `json:"response_mime_type,omitempty"`
	MaxRetries       int              `json:"max_retries"`
	RetryInitialMs   int              `json:"retry_initial_ms"`
	Prompt           *segment.Options `json:"prompt,omitempty"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/v1beta/models/{model}:generateContent"
	}
	if o.APIKeyInQuery == nil {
		t := true
		o.APIKeyInQuery = &t
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.RetryInitialMs <= 0 {
		o.RetryInitialMs = 500
	}
	if o.ResponseMIMEType == "" {
		o.ResponseMIMEType = "application/json"
	}
}

// Client: 以 Gemini generateContent 完成“断句 + 翻译”。
type Client struct {
	url      string
	apiKey   string
	inQuery  bool
	extraH   map[string]string
	respMIME string
	pb       contract.PromptBuilder
	do       func(*http.Request) (*http.Response, error)
	tries    uint
	initial  time.Duration
}

func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("gemini options: %w", err)
		}
	}
	opts.defaults()
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("gemini: %w: max_retries < 0", contract.ErrInvalidInput)
	}
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", contract.ErrInvalidInput)
	}
	pb, err := segment.New(opts.Prompt)
	if err != nil {
		return nil, fmt.Errorf("gemini prompt: %w", err)
	}
	path := strings.ReplaceAll(opts.EndpointPath, "{model}", url.PathEscape(opts.Model))
	if !(strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")) {
		path = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &Client{
		url:      path,
		apiKey:   key,
		inQuery:  *opts.APIKeyInQuery,
		extraH:   opts.ExtraHeaders,
		respMIME: opts.ResponseMIMEType,
		pb:       pb,
		do:       hc.Do,
		tries:    uint(opts.MaxRetries) + 1,
		initial:  time.Duration(opts.RetryInitialMs) * time.Millisecond,
	}, nil
}

// PromptBuilder 暴露内部构造器，供编排层估算固定开销。
func (c *Client) PromptBuilder() contract.PromptBuilder { return c.pb }

type gmPart struct {
	Text string `json:"text"`
}

type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}

type gmGenerationConfig struct {
	ResponseMIMEType string          `json:"response_mime_type,omitempty"`
	ResponseSchema   json.RawMessage `json:"response_schema,omitempty"`
}

type gmReq struct {
	SystemInstruction *gmContent          `json:"system_instruction,omitempty"`
	Contents          []gmContent         `json:"contents"`
	GenerationConfig  *gmGenerationConfig `json:"generationConfig,omitempty"`
}

type gmResp struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("gemini upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// encodePrompt: system 消息进入 system_instruction；role=json_schema 转为 response_schema。
func (c *Client) encodePrompt(p contract.Prompt) ([]byte, error) {
	var req gmReq
	switch v := p.(type) {
	case contract.TextPrompt:
		req.Contents = []gmContent{{Role: "user", Parts: []gmPart{{Text: string(v)}}}}
	case contract.ChatPrompt:
		for _, m := range v {
			switch strings.ToLower(strings.TrimSpace(m.Role)) {
			case "json_schema":
				var raw json.RawMessage
				if json.Unmarshal([]byte(m.Content), &raw) == nil && len(raw) > 0 {
					req.GenerationConfig = &gmGenerationConfig{ResponseMIMEType: c.respMIME, ResponseSchema: raw}
				}
			case "system":
				if req.SystemInstruction == nil {
					req.SystemInstruction = &gmContent{}
				}
				req.SystemInstruction.Parts = append(req.SystemInstruction.Parts, gmPart{Text: m.Content})
			default:
				req.Contents = append(req.Contents, gmContent{Role: geminiRole(m.Role), Parts: []gmPart{{Text: m.Content}}})
			}
		}
	default:
		return nil, contract.ErrInvalidInput
	}
	if len(req.Contents) == 0 {
		return nil, fmt.Errorf("empty contents: %w", contract.ErrInvalidInput)
	}
	return json.Marshal(&req)
}

// geminiRole: assistant→model，其余→user。
func geminiRole(r string) string {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "model", "assistant":
		return "model"
	default:
		return "user"
	}
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
		segs, err := llm.DecodeSegments(content)
		if err != nil {
			return nil, retryable(err)
		}
		return segs, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.tries))
}

func retryable(err error) error {
	if errors.Is(err, contract.ErrInvalidInput) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}

func (c *Client) invoke(ctx context.Context, body []byte) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid url: %v: %w", err, contract.ErrInvalidInput)
	}
	if c.inQuery {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if !c.inQuery {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	for k, v := range c.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
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
		return "", fmt.Errorf("gemini upstream %d: %w", resp.StatusCode, contract.ErrInvalidInput)
	}
	var gr gmResp
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode: %w", contract.ErrResponseInvalid)
	}
	if len(gr.Candidates) == 0 {
		return "", contract.ErrResponseInvalid
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", contract.ErrResponseInvalid
	}
	return sb.String(), nil
}

var _ contract.Translator = (*Client)(nil)
