package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsync/pkg/contract"
)

func chatReply(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
	return b
}

func TestTranslateChunk(t *testing.T) {
	var seen oaReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &seen))
		_, _ = w.Write(chatReply(`{"segments":[{"original":"so today","translated":"所以今天"},{"original":"we talk","translated":"我們聊聊"}]}`))
	}))
	defer srv.Close()

	c, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `/v1","api_key":"k","model":"m1"}`))
	require.NoError(t, err)
	segs, err := c.TranslateChunk(context.Background(), "so today we talk", "zh-TW")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "我們聊聊", segs[1].Translated)

	assert.Equal(t, "m1", seen.Model)
	require.Len(t, seen.Messages, 2, "json_schema 消息不应进入 messages")
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, "json_schema", seen.ResponseFormat.Type)
}

func TestDecodeSegments(t *testing.T) {
	segs, err := DecodeSegments("```json\n[{\"original\":\"a\",\"translated\":\"甲\"},{\"original\":\" \",\"translated\":\"\"}]\n```")
	require.NoError(t, err)
	assert.Equal(t, []contract.TranslatedSegment{{Original: "a", Translated: "甲"}}, segs)

	_, err = DecodeSegments(`{"segments":[]}`)
	assert.ErrorIs(t, err, contract.ErrResponseInvalid)
	_, err = DecodeSegments(`not json`)
	assert.ErrorIs(t, err, contract.ErrResponseInvalid)
}

func TestStatusMapping(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	c, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `","api_key":"k"}`))
	require.NoError(t, err)

	_, err = c.TranslateChunk(context.Background(), "x", "zh")
	assert.ErrorIs(t, err, contract.ErrRateLimited)

	status = http.StatusServiceUnavailable
	_, err = c.TranslateChunk(context.Background(), "x", "zh")
	var ue contract.UpstreamError
	assert.True(t, errors.As(err, &ue))

	status = http.StatusUnauthorized
	_, err = c.TranslateChunk(context.Background(), "x", "zh")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestMissingKey(t *testing.T) {
	t.Setenv("SUBSYNC_TEST_NO_KEY", "")
	_, err := New(json.RawMessage(`{"api_key_env":"SUBSYNC_TEST_NO_KEY"}`))
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	c, err := New(json.RawMessage(`{"api_key_env":"SUBSYNC_TEST_NO_KEY","disable_default_auth":true,"endpoint_path":"http://127.0.0.1:1/x"}`))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1/x", c.url)
	assert.NotNil(t, c.PromptBuilder())
}

func TestRetryWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			_, _ = w.Write(chatReply(`not json`))
		default:
			_, _ = w.Write(chatReply(`[{"original":"a","translated":"甲"}]`))
		}
	}))
	defer srv.Close()

	c, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `","api_key":"k","max_retries":2,"retry_initial_ms":1}`))
	require.NoError(t, err)
	segs, err := c.TranslateChunk(context.Background(), "a", "zh")
	require.NoError(t, err)
	assert.Len(t, segs, 1)
	assert.EqualValues(t, 3, calls.Load(), "5xx 与无效响应均重试")
}

func TestRetryStopsOnPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `","api_key":"k","max_retries":3,"retry_initial_ms":1}`))
	require.NoError(t, err)
	_, err = c.TranslateChunk(context.Background(), "a", "zh")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	assert.EqualValues(t, 1, calls.Load())

	_, err = New(json.RawMessage(`{"api_key":"k","max_retries":-1}`))
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
