package playback

import (
	"sync"
	"time"
)

// Clock 模拟可暂停、可跳转、可变速的播放时钟（毫秒）。
// 零值不可用，使用 New。
type Clock struct {
	mu      sync.Mutex
	now     func() time.Time
	base    int64     // 上次锚定时的播放位置
	anchor  time.Time // 上次锚定的墙钟
	rate    float64
	playing bool
}

// New 创建位于 0ms、处于暂停态的时钟。now 为 nil 时使用 time.Now。
func New(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, rate: 1, anchor: now()}
}

// NowMs 返回当前播放位置。
func (c *Clock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) positionLocked() int64 {
	if !c.playing {
		return c.base
	}
	el := c.now().Sub(c.anchor)
	return c.base + int64(float64(el.Milliseconds())*c.rate)
}

func (c *Clock) reanchorLocked() {
	c.base = c.positionLocked()
	c.anchor = c.now()
}

func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchorLocked()
	c.playing = true
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchorLocked()
	c.playing = false
}

func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Seek 跳转到 ms（负值按 0）。
func (c *Clock) Seek(ms int64) {
	if ms < 0 {
		ms = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = ms
	c.anchor = c.now()
}

// SetRate 设置播放速率（<=0 忽略）。
func (c *Clock) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchorLocked()
	c.rate = rate
}
