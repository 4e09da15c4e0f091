// Package syncengine 按播放时钟驱动字幕渲染：每个 tick 以绝对时间二分查找当前句，
// 仅在句子索引（或显示模式）变化时调用渲染出口。
package syncengine

import (
	"sync/atomic"

	"subsync/internal/timeline"
	"subsync/pkg/contract"
)

// Track 为一次发布的不可变句子序列。发布后不得再修改 Sentences。
type Track struct {
	Context   contract.ContextID
	Kind      contract.SegmentationKind
	Sentences []contract.Sentence
}

// Len 返回句子数（nil 安全）。
func (t *Track) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Sentences)
}

const none = timeline.NotFound

// Engine 的 Tick 必须始终在同一个 goroutine 上调用（见 Run）；
// Publish/Reset/Set* 可在任意 goroutine 调用。
type Engine struct {
	clock   contract.Clock
	render  contract.Renderer
	caption contract.CaptionSignal

	track   atomic.Pointer[Track]
	enabled atomic.Bool
	mode    atomic.Uint32
	offset  atomic.Int64
	dirty   atomic.Bool

	// 以下仅 tick goroutine 读写
	seen    *Track
	current int
	shown   bool

	// 观测用
	cur     atomic.Int64
	renders atomic.Int64
	clears  atomic.Int64
}

// Option 配置 Engine。
type Option func(*Engine)

// WithCaptionSignal 启用“当前是否有字幕”门控。
func WithCaptionSignal(s contract.CaptionSignal) Option {
	return func(e *Engine) { e.caption = s }
}

// WithOffset 设置初始时间偏移（毫秒，可为负）。
func WithOffset(ms int64) Option { return func(e *Engine) { e.offset.Store(ms) } }

// WithMode 设置初始显示模式。
func WithMode(m contract.DisplayMode) Option { return func(e *Engine) { e.mode.Store(uint32(m)) } }

// New 创建启用状态的引擎。
func New(clock contract.Clock, render contract.Renderer, opts ...Option) *Engine {
	e := &Engine{clock: clock, render: render, current: none}
	e.enabled.Store(true)
	e.cur.Store(none)
	for _, o := range opts {
		o(e)
	}
	return e
}

// Publish 以整体替换的方式发布新轨道（append-then-swap）。
func (e *Engine) Publish(t *Track) { e.track.Store(t) }

// Reset 丢弃当前轨道；下一个 tick 清屏一次后进入空转。
func (e *Engine) Reset() { e.track.Store(nil) }

// Track 返回当前已发布轨道（可能为 nil）。
func (e *Engine) Track() *Track { return e.track.Load() }

func (e *Engine) SetEnabled(on bool) {
	if e.enabled.Swap(on) != on {
		e.dirty.Store(true)
	}
}

func (e *Engine) Enabled() bool { return e.enabled.Load() }

func (e *Engine) SetDisplayMode(m contract.DisplayMode) {
	if contract.DisplayMode(e.mode.Swap(uint32(m))) != m {
		e.dirty.Store(true)
	}
}

func (e *Engine) DisplayMode() contract.DisplayMode { return contract.DisplayMode(e.mode.Load()) }

// SetOffset 设置时间偏移：lookup = clock - offset。
func (e *Engine) SetOffset(ms int64) { e.offset.Store(ms) }

func (e *Engine) Offset() int64 { return e.offset.Load() }

// Current 返回最近一次 tick 的句子索引（NotFound 表示无）。
func (e *Engine) Current() int { return int(e.cur.Load()) }

// Stats 返回累计渲染与清屏次数。
func (e *Engine) Stats() (renders, clears int64) { return e.renders.Load(), e.clears.Load() }

// Tick 执行一次同步。无阻塞，未变化时仅一次比较。
func (e *Engine) Tick() {
	t := e.track.Load()
	force := e.dirty.Swap(false)
	if t != e.seen {
		// 新轨道的索引空间不同，强制重新评估
		e.seen = t
		force = true
	}

	if !e.enabled.Load() || t.Len() == 0 {
		e.settle(none)
		return
	}
	if e.caption != nil && !e.caption.CaptionVisible() {
		e.settle(none)
		return
	}

	idx := timeline.FindByTime(t.Sentences, e.clock.NowMs()-e.offset.Load())
	if idx == e.current && !force {
		return
	}
	if idx == none {
		e.settle(none)
		return
	}
	s := t.Sentences[idx]
	e.render.Render(s.Text, s.Translation, e.DisplayMode())
	e.renders.Add(1)
	e.shown = true
	e.setCurrent(idx)
}

// settle 进入“无句子”状态：仅当此前有输出时清屏一次。
func (e *Engine) settle(idx int) {
	if e.shown {
		e.render.Clear()
		e.clears.Add(1)
		e.shown = false
	}
	e.setCurrent(idx)
}

func (e *Engine) setCurrent(idx int) {
	e.current = idx
	e.cur.Store(int64(idx))
}
