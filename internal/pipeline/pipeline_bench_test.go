package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"subsync/internal/diag"
	"subsync/pkg/contract"
	"subsync/plugins/aligner/fuzzy"
	"subsync/plugins/chunker/pause"
	"subsync/plugins/merger/heuristic"
	"subsync/plugins/translator/mock"
)

// synthFragments 构造 n 个带周期性停顿的片段。
func synthFragments(n int) []contract.RawFragment {
	out := make([]contract.RawFragment, n)
	var t int64
	for i := range out {
		out[i] = contract.RawFragment{Text: fmt.Sprintf("fragment number %d says hello.", i), StartMs: t, DurationMs: 800}
		t += 800
		if i%7 == 6 {
			t += 1500
		}
	}
	return out
}

// BenchmarkSegment 测试分块翻译 + 对齐在不同并发度下的开销。
func BenchmarkSegment(b *testing.B) {
	frs := synthFragments(3000)
	m, _ := heuristic.New(nil)
	ch, _ := pause.New(&pause.Options{MaxChars: 2000})
	tr, _ := mock.New(nil)
	comp := Components{Merger: m, Chunker: ch, Aligner: fuzzy.New(nil), Translator: tr}
	for _, c := range []int{1, runtime.NumCPU()} {
		b.Run(fmt.Sprintf("C=%d", c), func(b *testing.B) {
			s, err := NewSegmenter(comp, Settings{Concurrency: c}, diag.Nop())
			if err != nil {
				b.Fatalf("构造失败: %v", err)
			}
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				seg, err := s.Segment(ctx, ctxID, frs)
				if err != nil || seg.Kind != contract.SegAligned {
					b.Fatalf("分段失败: %v %v", err, seg.Kind)
				}
			}
		})
	}
}
