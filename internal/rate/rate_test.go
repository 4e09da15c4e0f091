package rate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"subsync/pkg/contract"
)

// 超过 RPM 后 Try 拒绝；时间推进后恢复。
func TestGateTryLimit(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1, CPM: 600}}, clk)
	if !g.Try(Ask{Key: "k", Requests: 1, Chars: 300}) {
		t.Fatalf("首次应通过")
	}
	if g.Try(Ask{Key: "k", Requests: 1, Chars: 3}) {
		t.Fatalf("应因 RPM 拒绝")
	}
	now = now.Add(61 * time.Second)
	if !g.Try(Ask{Key: "k", Requests: 1, Chars: 3}) {
		t.Fatalf("回填后应通过")
	}
}

// 字符维度：拒绝后不应消耗请求额度。
func TestGateTryCharsRollback(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 10, CPM: 100}}, func() time.Time { return now })
	if !g.Try(Ask{Key: "k", Requests: 1, Chars: 100}) {
		t.Fatalf("首次应通过")
	}
	if g.Try(Ask{Key: "k", Requests: 1, Chars: 50}) {
		t.Fatalf("字符不足应拒绝")
	}
	req, chars := g.(Snapshoter).Snapshot("k")
	if req != 9 || chars != 0 {
		t.Fatalf("req=%d chars=%d", req, chars)
	}
}

func TestGateBudget(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {CPM: 1000, MaxCharsPerReq: 50}}, nil)
	if err := g.Wait(context.Background(), Ask{Key: "k", Requests: 1, Chars: 51}); !errors.Is(err, contract.ErrBudgetExceeded) {
		t.Fatalf("want budget, got %v", err)
	}
	if err := g.Wait(context.Background(), Ask{Key: "k", Requests: 0}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid, got %v", err)
	}
	if g.Try(Ask{Key: "k", Requests: 1, Chars: 51}) {
		t.Fatalf("超单请求上限 Try 应失败")
	}
}

// 未配置的 key 不限额。
func TestGateUnconfigured(t *testing.T) {
	g := NewGate(nil, nil)
	for i := 0; i < 100; i++ {
		if err := g.Wait(context.Background(), Ask{Key: "free", Requests: 1, Chars: 1 << 20}); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
}

func TestGateWaitCancel(t *testing.T) {
	g := NewGate(map[LimitKey]Limits{"k": {RPM: 1}}, nil)
	if !g.Try(Ask{Key: "k", Requests: 1}) {
		t.Fatalf("首次应通过")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx, Ask{Key: "k", Requests: 1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("应返回超时错误: %v", err)
	}
}

func TestDeriveKeyFromProviderOptions(t *testing.T) {
	t.Setenv("TEST_KEY", "abc")
	raw, _ := json.Marshal(map[string]any{"api_key_env": "TEST_KEY"})
	k1, err := DeriveKeyFromProviderOptions("llm", raw)
	if err != nil || k1 == "" {
		t.Fatalf("派生失败: %v", err)
	}
	k2, _ := DeriveKeyFromProviderOptions("llm", json.RawMessage(`{"api_key":"abc"}`))
	if k1 != k2 {
		t.Fatalf("同一凭据应同组: %s vs %s", k1, k2)
	}
	if _, err := DeriveKeyFromProviderOptions("llm", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("缺少 key 应失败")
	}
	g1, err := DeriveKeyFromProviderOptions("google", nil)
	if err != nil || g1 == "" {
		t.Fatalf("google 应无需凭据: %v", err)
	}
	if m, err := DeriveKeyFromProviderOptions("mock", nil); err != nil || m == "" {
		t.Fatalf("mock: %v", err)
	}
}
