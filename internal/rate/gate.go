package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"subsync/pkg/contract"
)

// LimitKey: 限流分组键（provider + 凭据摘要）。
type LimitKey string

// Limits: 每分组限额。0 表示该维度不启用。
type Limits struct {
	RPM            int // 每分钟请求数
	CPM            int // 每分钟字符数
	MaxCharsPerReq int // 单次请求字符上限
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >= 1
	Chars    int // >= 0
}

// Gate: 并发安全的限流闸门。
type Gate interface {
	// Wait 阻塞直到两个维度都有额度或 ctx 取消；超出单请求上限时快速失败。
	Wait(ctx context.Context, a Ask) error
	// Try 非阻塞尝试。
	Try(a Ask) bool
}

// NewGate 从静态配置构造；clk 为空使用 time.Now。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

// entry 两个令牌桶：请求数与字符数，均以“每分钟容量”匀速回填。
type entry struct {
	lim   Limits
	req   *xrate.Limiter
	chars *xrate.Limiter
}

func perMinute(n int) *xrate.Limiter {
	if n <= 0 {
		return nil
	}
	return xrate.NewLimiter(xrate.Limit(float64(n)/60.0), n)
}

func newEntry(lim Limits) *entry {
	return &entry{lim: lim, req: perMinute(lim.RPM), chars: perMinute(lim.CPM)}
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		e = newEntry(Limits{})
		g.m[key] = e
	}
	return e
}

func (e *entry) check(a Ask) error {
	if a.Requests <= 0 || a.Chars < 0 {
		return fmt.Errorf("rate: bad ask %+v: %w", a, contract.ErrInvalidInput)
	}
	if e.lim.MaxCharsPerReq > 0 && a.Chars > e.lim.MaxCharsPerReq {
		return fmt.Errorf("rate: %d chars > max_chars_per_req %d: %w", a.Chars, e.lim.MaxCharsPerReq, contract.ErrBudgetExceeded)
	}
	if e.lim.RPM > 0 && a.Requests > e.lim.RPM {
		return fmt.Errorf("rate: %d requests > rpm %d: %w", a.Requests, e.lim.RPM, contract.ErrBudgetExceeded)
	}
	if e.lim.CPM > 0 && a.Chars > e.lim.CPM {
		return fmt.Errorf("rate: %d chars > cpm %d: %w", a.Chars, e.lim.CPM, contract.ErrBudgetExceeded)
	}
	return nil
}

// reserve 同时预留两个维度，返回需要等待的时长与撤销函数。
func (e *entry) reserve(now time.Time, a Ask) (time.Duration, func()) {
	var rs []*xrate.Reservation
	var wait time.Duration
	if e.req != nil {
		r := e.req.ReserveN(now, a.Requests)
		rs = append(rs, r)
		wait = max(wait, r.DelayFrom(now))
	}
	if e.chars != nil && a.Chars > 0 {
		r := e.chars.ReserveN(now, a.Chars)
		rs = append(rs, r)
		wait = max(wait, r.DelayFrom(now))
	}
	return wait, func() {
		for _, r := range rs {
			r.CancelAt(now)
		}
	}
}

func (g *gate) Try(a Ask) bool {
	e := g.get(a.Key)
	if e.check(a) != nil {
		return false
	}
	wait, cancel := e.reserve(g.clk(), a)
	if wait > 0 {
		cancel()
		return false
	}
	return true
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	e := g.get(a.Key)
	if err := e.check(a); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	wait, cancel := e.reserve(g.clk(), a)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot 返回当前可用请求/字符额度的向下取整估值（仅诊断）。
func (g *gate) Snapshot(key LimitKey) (reqAvail, charAvail int) {
	e := g.get(key)
	now := g.clk()
	if e.req != nil {
		reqAvail = int(max(e.req.TokensAt(now), 0))
	}
	if e.chars != nil {
		charAvail = int(max(e.chars.TokensAt(now), 0))
	}
	return reqAvail, charAvail
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (reqAvail, charAvail int)
}

var (
	_ Gate       = (*gate)(nil)
	_ Snapshoter = (*gate)(nil)
)
