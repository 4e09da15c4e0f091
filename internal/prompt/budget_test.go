package prompt

import (
	"context"
	"errors"
	"testing"

	"subsync/pkg/contract"
)

func TestMakeEstimatorDefault(t *testing.T) {
	est := MakeEstimator(0)
	if est("") != 0 || est("abcd") != 1 || est("abcde") != 2 {
		t.Fatalf("估算异常")
	}
	if MakeEstimator(3)("你") != 1 {
		t.Fatalf("3 字节应为 1 token")
	}
}

type mockPB struct{ overhead int }

func (m *mockPB) Build(context.Context, string, string) (contract.Prompt, error) {
	return contract.TextPrompt(""), nil
}
func (m *mockPB) EstimateOverheadTokens(contract.TokenEstimator) int { return m.overhead }

func TestEffectiveMaxTokens(t *testing.T) {
	if eff, ov := EffectiveMaxTokens(&mockPB{overhead: 10}, 4, 0); eff != 0 || ov != 0 {
		t.Fatalf("maxTokens=0 应返回 0,0")
	}
	if eff, ov := EffectiveMaxTokens(&mockPB{overhead: 10}, 4, 100); eff != 90 || ov != 10 {
		t.Fatalf("eff=%d ov=%d", eff, ov)
	}
}

func TestChunkCharBudget(t *testing.T) {
	pb := &mockPB{overhead: 100}
	if got, err := ChunkCharBudget(pb, 4, 0, 4000); err != nil || got != 4000 {
		t.Fatalf("无上限应原样返回: %d %v", got, err)
	}
	if got, err := ChunkCharBudget(pb, 4, 1000, 4000); err != nil || got != 1200 {
		t.Fatalf("got %d %v", got, err)
	}
	if got, _ := ChunkCharBudget(pb, 4, 100000, 4000); got != 4000 {
		t.Fatalf("应被 maxChars 截断: %d", got)
	}
	if _, err := ChunkCharBudget(pb, 4, 50, 4000); !errors.Is(err, contract.ErrBudgetExceeded) {
		t.Fatalf("预算耗尽应报错: %v", err)
	}
}
