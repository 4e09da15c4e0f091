package google

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsync/pkg/contract"
)

func newClient(t *testing.T, srv *httptest.Server, extra string) *Client {
	t.Helper()
	raw := `{"base_url":"` + srv.URL + `"` + extra + `}`
	c, err := New(json.RawMessage(raw))
	require.NoError(t, err)
	return c
}

const segmented = `[[["你好，世界。","Hello, world. ",null,null,10],["你好嗎？","How are you?",null,null,10]],null,"en",null,null,null,1]`

func TestTranslateChunkSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "gtx", r.PostForm.Get("client"))
		assert.Equal(t, "auto", r.PostForm.Get("sl"))
		assert.Equal(t, "zh-TW", r.PostForm.Get("tl"))
		assert.Equal(t, "t", r.PostForm.Get("dt"))
		assert.Equal(t, "Hello, world. How are you?", r.PostForm.Get("q"))
		_, _ = w.Write([]byte(segmented))
	}))
	defer srv.Close()

	segs, err := newClient(t, srv, "").TranslateChunk(context.Background(), "Hello, world. How are you?", "zh-TW")
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, contract.TranslatedSegment{Original: "Hello, world.", Translated: "你好，世界。"}, segs[0])
	assert.Equal(t, "How are you?", segs[1].Original)
}

func TestTranslateLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		assert.Equal(t, "one\ntwo three\nfour", r.PostForm.Get("q"))
		_, _ = w.Write([]byte(`[[["一\n","one\n"],["二三\n","two three\n"]],null,"en"]`))
	}))
	defer srv.Close()
	got, err := newClient(t, srv, "").TranslateLines(context.Background(), []string{"one", "two\nthree", " four "}, "zh")
	require.NoError(t, err)
	assert.Equal(t, []string{"一", "二三", ""}, got)
}

// TestRetryOnce429 429 后等待并重试一次。
func TestRetryOnce429(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(segmented))
	}))
	defer srv.Close()
	segs, err := newClient(t, srv, `,"retry_after_ms":5`).TranslateChunk(context.Background(), "x", "zh")
	require.NoError(t, err)
	assert.Len(t, segs, 2)
	assert.Equal(t, int32(2), n.Load())
}

func TestRateLimitedAfterRetry(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := newClient(t, srv, `,"retry_after_ms":1`).TranslateChunk(context.Background(), "x", "zh")
	assert.ErrorIs(t, err, contract.ErrRateLimited)
	assert.Equal(t, int32(2), n.Load())

	n.Store(0)
	_, err = newClient(t, srv, `,"retry_after_ms":-1`).TranslateChunk(context.Background(), "x", "zh")
	assert.ErrorIs(t, err, contract.ErrRateLimited)
	assert.Equal(t, int32(1), n.Load(), "禁用重试时只请求一次")
}

// TestNoRetryOnOtherFailures 只有 429 会重试；5xx 与 4xx 立即返回。
func TestNoRetryOnOtherFailures(t *testing.T) {
	var n atomic.Int32
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		w.WriteHeader(status)
	}))
	defer srv.Close()
	c := newClient(t, srv, `,"retry_after_ms":1`)

	_, err := c.TranslateChunk(context.Background(), "x", "zh")
	var ue contract.UpstreamError
	require.True(t, errors.As(err, &ue), "err=%v", err)
	assert.Equal(t, int32(1), n.Load())

	status = http.StatusBadRequest
	_, err = c.TranslateChunk(context.Background(), "x", "zh")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	assert.Equal(t, int32(2), n.Load())
}

// TestRetryWaitHonorsContext 等待重试期间取消。
func TestRetryWaitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newClient(t, srv, `,"retry_after_ms":10000`).TranslateChunk(ctx, "x", "zh")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUpstreamErrors(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer srv.Close()
	c := newClient(t, srv, "")

	_, err := c.TranslateChunk(context.Background(), "x", "zh")
	var ne net.Error
	require.True(t, errors.As(err, &ne), "5xx 应实现 net.Error: %v", err)
	var ue contract.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 502, ue.UpstreamStatus())
	assert.Equal(t, "bad gateway", ue.UpstreamMessage())

	status = http.StatusForbidden
	_, err = c.TranslateChunk(context.Background(), "x", "zh")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"array"}`))
	}))
	defer srv.Close()
	_, err := newClient(t, srv, "").TranslateChunk(context.Background(), "x", "zh")
	assert.ErrorIs(t, err, contract.ErrResponseInvalid)
}

func TestNullSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[null,null,"ja"]`))
	}))
	defer srv.Close()
	c := newClient(t, srv, "")
	segs, err := c.TranslateChunk(context.Background(), "x", "zh")
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestEmptyTargetRejected(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	_, err = c.TranslateChunk(context.Background(), "x", " ")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
