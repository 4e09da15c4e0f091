package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsync/pkg/contract"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64 { return c.ms }

type call struct {
	clear       bool
	orig, trans string
	mode        contract.DisplayMode
}

type recRenderer struct {
	mu    sync.Mutex
	calls []call
}

func (r *recRenderer) Render(o, t string, m contract.DisplayMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{orig: o, trans: t, mode: m})
}

func (r *recRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{clear: true})
}

func (r *recRenderer) n() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recRenderer) last() call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

type captionFlag struct{ on bool }

func (c *captionFlag) CaptionVisible() bool { return c.on }

func track() *Track {
	return &Track{
		Context: contract.ContextID{VideoID: "v1", TargetLang: "zh"},
		Kind:    contract.SegAligned,
		Sentences: []contract.Sentence{
			{Text: "Hello there.", StartMs: 0, EndMs: 1000, Translation: "你好。"},
			{Text: "How are you?", StartMs: 1000, EndMs: 2000, Translation: "你好吗？"},
			{Text: "Fine.", StartMs: 3000, EndMs: 4000},
		},
	}
}

// 从未发布句子的引擎在任意次 tick 中都不触达渲染出口。
func TestTickWithoutTrackIsNoop(t *testing.T) {
	clk := &fakeClock{}
	r := &recRenderer{}
	e := New(clk, r)
	for i := 0; i < 100; i++ {
		clk.ms += 16
		e.Tick()
	}
	if r.n() != 0 {
		t.Fatalf("无句子时不应渲染或清屏: %d 次调用", r.n())
	}
	if e.Current() != none {
		t.Fatalf("current 应为 NotFound: %d", e.Current())
	}
}

func TestTickRendersOnlyOnIndexChange(t *testing.T) {
	clk := &fakeClock{ms: 100}
	r := &recRenderer{}
	e := New(clk, r)
	e.Publish(track())

	e.Tick()
	require.Equal(t, 1, r.n())
	assert.Equal(t, "Hello there.", r.last().orig)
	assert.Equal(t, "你好。", r.last().trans)

	// 同一句内多次 tick 不重复渲染
	for _, ms := range []int64{200, 500, 999} {
		clk.ms = ms
		e.Tick()
	}
	assert.Equal(t, 1, r.n())

	clk.ms = 1000
	e.Tick()
	require.Equal(t, 2, r.n())
	assert.Equal(t, "How are you?", r.last().orig)
	assert.Equal(t, 1, e.Current())

	// 空隙：清屏一次
	clk.ms = 2500
	e.Tick()
	e.Tick()
	require.Equal(t, 3, r.n())
	assert.True(t, r.last().clear)
	assert.Equal(t, none, e.Current())

	clk.ms = 3500
	e.Tick()
	require.Equal(t, 4, r.n())
	assert.Equal(t, "Fine.", r.last().orig)
	assert.Empty(t, r.last().trans)

	renders, clears := e.Stats()
	assert.EqualValues(t, 3, renders)
	assert.EqualValues(t, 1, clears)
}

func TestTickSeekBackward(t *testing.T) {
	clk := &fakeClock{ms: 3500}
	r := &recRenderer{}
	e := New(clk, r)
	e.Publish(track())
	e.Tick()
	clk.ms = 10
	e.Tick()
	require.Equal(t, 2, r.n())
	assert.Equal(t, "Hello there.", r.last().orig)
	assert.Equal(t, 0, e.Current())
}

func TestTickGapBeforeFirstSentenceNoClear(t *testing.T) {
	clk := &fakeClock{ms: 0}
	r := &recRenderer{}
	e := New(clk, r)
	tr := track()
	tr.Sentences[0].StartMs = 500
	e.Publish(tr)
	e.Tick()
	assert.Equal(t, 0, r.n(), "尚未显示任何内容时不清屏")
}

func TestOffsetShiftsLookup(t *testing.T) {
	clk := &fakeClock{ms: 1200}
	r := &recRenderer{}
	e := New(clk, r, WithOffset(500))
	e.Publish(track())
	e.Tick()
	require.Equal(t, 1, r.n())
	assert.Equal(t, "Hello there.", r.last().orig, "lookup = 1200-500 = 700")

	e.SetOffset(-1000)
	e.Tick()
	require.Equal(t, 2, r.n())
	assert.True(t, r.last().clear, "lookup = 2200 落在空隙")

	e.SetOffset(-2000)
	e.Tick()
	assert.Equal(t, "Fine.", r.last().orig, "lookup = 3200")
	assert.Equal(t, int64(-2000), e.Offset())
}

func TestDisabledClearsOnceThenIdle(t *testing.T) {
	clk := &fakeClock{ms: 100}
	r := &recRenderer{}
	e := New(clk, r)
	e.Publish(track())
	e.Tick()
	require.Equal(t, 1, r.n())

	e.SetEnabled(false)
	e.Tick()
	e.Tick()
	require.Equal(t, 2, r.n())
	assert.True(t, r.last().clear)

	e.SetEnabled(true)
	e.Tick()
	require.Equal(t, 3, r.n())
	assert.Equal(t, "Hello there.", r.last().orig)
}

func TestModeChangeRerenders(t *testing.T) {
	clk := &fakeClock{ms: 100}
	r := &recRenderer{}
	e := New(clk, r, WithMode(contract.DisplayOriginal))
	e.Publish(track())
	e.Tick()
	assert.Equal(t, contract.DisplayOriginal, r.last().mode)

	e.SetDisplayMode(contract.DisplayOriginal)
	e.Tick()
	assert.Equal(t, 1, r.n(), "同一模式不触发重绘")

	e.SetDisplayMode(contract.DisplayTranslation)
	e.Tick()
	require.Equal(t, 2, r.n())
	assert.Equal(t, contract.DisplayTranslation, r.last().mode)
	assert.Equal(t, "Hello there.", r.last().orig)
}

func TestResetClearsOnce(t *testing.T) {
	clk := &fakeClock{ms: 100}
	r := &recRenderer{}
	e := New(clk, r)
	e.Publish(track())
	e.Tick()
	e.Reset()
	for i := 0; i < 5; i++ {
		e.Tick()
	}
	require.Equal(t, 2, r.n())
	assert.True(t, r.last().clear)
	assert.Nil(t, e.Track())
}

func TestPublishSwapForcesRender(t *testing.T) {
	clk := &fakeClock{ms: 100}
	r := &recRenderer{}
	e := New(clk, r)
	e.Publish(track())
	e.Tick()

	// 同一索引，但新轨道带有译文
	next := track()
	next.Sentences[0].Translation = "哈喽。"
	e.Publish(next)
	e.Tick()
	require.Equal(t, 2, r.n())
	assert.Equal(t, "哈喽。", r.last().trans)
}

func TestCaptionGate(t *testing.T) {
	clk := &fakeClock{ms: 100}
	r := &recRenderer{}
	sig := &captionFlag{on: true}
	e := New(clk, r, WithCaptionSignal(sig))
	e.Publish(track())
	e.Tick()
	require.Equal(t, 1, r.n())

	sig.on = false
	e.Tick()
	e.Tick()
	require.Equal(t, 2, r.n())
	assert.True(t, r.last().clear)

	sig.on = true
	e.Tick()
	require.Equal(t, 3, r.n())
	assert.Equal(t, "Hello there.", r.last().orig)
}

func TestInterval(t *testing.T) {
	d, err := Interval(0)
	require.NoError(t, err)
	assert.Equal(t, time.Second/DefaultHz, d)
	d, err = Interval(FallbackHz)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)
	_, err = Interval(5000)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestRunStopsOnCancelAndClears(t *testing.T) {
	clk := &fakeClock{ms: 100}
	r := &recRenderer{}
	e := New(clk, r)
	e.Publish(track())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, 200) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.n() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run 未在取消后退出")
	}
	require.GreaterOrEqual(t, r.n(), 2)
	assert.True(t, r.last().clear)
}
