package heuristic

import (
	"math/rand"
	"strings"
	"testing"
	"unicode"

	"subsync/pkg/contract"
)

func frag(text string, start, dur int64) contract.RawFragment {
	return contract.RawFragment{Text: text, StartMs: start, DurationMs: dur}
}

func mustNew(t *testing.T, o *Options) *Merger {
	t.Helper()
	m, err := New(o)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return m
}

// TestScenarioA 间隔小于阈值且末尾句号：合并为一句。
func TestScenarioA(t *testing.T) {
	m := mustNew(t, &Options{PauseThresholdMs: 400})
	got := m.Merge([]contract.RawFragment{frag("Hello", 0, 400), frag("world.", 450, 400)})
	if len(got) != 1 {
		t.Fatalf("want 1 sentence, got %+v", got)
	}
	if got[0].Text != "Hello world." || got[0].StartMs != 0 || got[0].EndMs != 850 {
		t.Fatalf("unexpected sentence %+v", got[0])
	}
}

// TestScenarioB 长停顿预断句，首句间隙填充至次句起点。
func TestScenarioB(t *testing.T) {
	m := mustNew(t, &Options{PauseThresholdMs: 400})
	got := m.Merge([]contract.RawFragment{frag("A", 0, 200), frag("B", 1500, 200)})
	if len(got) != 2 {
		t.Fatalf("want 2 sentences, got %+v", got)
	}
	if got[0].EndMs != 1500 || got[1].StartMs != 1500 || got[1].EndMs != 1700 {
		t.Fatalf("gap fill 失败: %+v", got)
	}
}

func TestEmptyAndWhitespace(t *testing.T) {
	m := mustNew(t, nil)
	if got := m.Merge(nil); len(got) != 0 {
		t.Fatalf("空输入应返回空: %+v", got)
	}
	got := m.Merge([]contract.RawFragment{frag("  ", 0, 100), frag("\n", 100, 100), frag("hi", 5000, 100)})
	if len(got) != 1 || got[0].StartMs != 5000 || got[0].Text != "hi" {
		t.Fatalf("空白片段应被跳过: %+v", got)
	}
}

// TestWhitespaceDoesNotResetPause 空白片段不参与停顿计算。
func TestWhitespaceDoesNotResetPause(t *testing.T) {
	m := mustNew(t, &Options{PauseThresholdMs: 400})
	got := m.Merge([]contract.RawFragment{frag("a", 0, 100), frag(" ", 300, 1000), frag("b", 1000, 100)})
	if len(got) != 2 {
		t.Fatalf("间隔 900ms 应断句: %+v", got)
	}
}

func TestCharBudget(t *testing.T) {
	m := mustNew(t, &Options{MaxSentenceChars: 10})
	// "abcd efgh" = 9；再加 " ij" => 12 > 10
	got := m.Merge([]contract.RawFragment{frag("abcd", 0, 10), frag("efgh", 10, 10), frag("ij", 20, 10)})
	if len(got) != 2 || got[0].Text != "abcd efgh" || got[1].Text != "ij" {
		t.Fatalf("字符预算断句失败: %+v", got)
	}
}

// TestOversizedFirstFragment 单个超长片段独立成句。
func TestOversizedFirstFragment(t *testing.T) {
	m := mustNew(t, &Options{MaxSentenceChars: 5})
	long := strings.Repeat("x", 40)
	got := m.Merge([]contract.RawFragment{frag(long, 0, 10), frag("y", 10, 10)})
	if len(got) != 2 || got[0].Text != long {
		t.Fatalf("超长片段处理失败: %+v", got)
	}
}

func TestMaxFragments(t *testing.T) {
	m := mustNew(t, &Options{MaxFragments: 3})
	var in []contract.RawFragment
	for i := 0; i < 7; i++ {
		in = append(in, frag("w", int64(i*10), 10))
	}
	got := m.Merge(in)
	if len(got) != 3 || got[0].Text != "w w w" || got[2].Text != "w" {
		t.Fatalf("片段数断句失败: %+v", got)
	}
}

func TestCJKJoinAndPunctuation(t *testing.T) {
	m := mustNew(t, nil)
	got := m.Merge([]contract.RawFragment{frag("今天", 0, 100), frag("天气", 100, 100), frag("很好。", 200, 100), frag("是吗？", 300, 100)})
	if len(got) != 2 || got[0].Text != "今天天气很好。" || got[1].Text != "是吗？" {
		t.Fatalf("CJK 拼接失败: %+v", got)
	}
}

// TestRuneBudgetCountsCharacters 字符预算按字符而非字节计。
func TestRuneBudgetCountsCharacters(t *testing.T) {
	m := mustNew(t, &Options{MaxSentenceChars: 6})
	got := m.Merge([]contract.RawFragment{frag("你好", 0, 10), frag("世界", 10, 10)})
	if len(got) != 1 {
		t.Fatalf("4 个字符 + 1 未超过 6: %+v", got)
	}
}

func TestNegativeOptions(t *testing.T) {
	if _, err := New(&Options{MaxFragments: -1}); err == nil {
		t.Fatalf("负值应报错")
	}
}

func nonSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// TestProperties 随机输入：有序、无空隙、文本守恒。
func TestProperties(t *testing.T) {
	words := []string{"the", "quick", "brown", "fox.", "jumps", "?", "好的", "。", "  ", "over"}
	r := rand.New(rand.NewSource(42))
	m := mustNew(t, nil)
	for round := 0; round < 200; round++ {
		var in []contract.RawFragment
		var at int64
		var src strings.Builder
		n := r.Intn(60)
		for i := 0; i < n; i++ {
			at += int64(r.Intn(700))
			w := words[r.Intn(len(words))]
			in = append(in, frag(w, at, int64(r.Intn(500))))
			src.WriteString(w)
		}
		got := m.Merge(in)
		var joined strings.Builder
		for i, s := range got {
			if s.StartMs > s.EndMs {
				t.Fatalf("start > end: %+v", s)
			}
			if i > 0 && got[i-1].StartMs > s.StartMs {
				t.Fatalf("未排序: %+v", got)
			}
			if i+1 < len(got) && s.EndMs != got[i+1].StartMs {
				t.Fatalf("存在空隙: %+v / %+v", s, got[i+1])
			}
			joined.WriteString(s.Text)
		}
		if nonSpace(joined.String()) != nonSpace(src.String()) {
			t.Fatalf("文本不守恒:\n%q\n%q", joined.String(), src.String())
		}
	}
}

func BenchmarkMerge(b *testing.B) {
	in := make([]contract.RawFragment, 2000)
	for i := range in {
		w := "word"
		if i%9 == 8 {
			w = "end."
		}
		in[i] = frag(w, int64(i*250), 200)
	}
	m, _ := New(nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Merge(in)
	}
}
