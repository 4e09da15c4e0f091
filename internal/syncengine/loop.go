package syncengine

import (
	"context"
	"fmt"
	"time"

	"subsync/pkg/contract"
)

const (
	// DefaultHz 为目标刷新率。
	DefaultHz = 60
	// FallbackHz 为低频回退刷新率。
	FallbackHz = 4
)

// Interval 将刷新率换算为 tick 间隔；hz<=0 使用 DefaultHz，超过 1000 视为非法。
func Interval(hz int) (time.Duration, error) {
	switch {
	case hz <= 0:
		hz = DefaultHz
	case hz > 1000:
		return 0, fmt.Errorf("%w: tick_hz %d > 1000", contract.ErrInvalidInput, hz)
	}
	return time.Second / time.Duration(hz), nil
}

// Run 在调用方 goroutine 上以固定间隔调用 Tick，直到 ctx 结束。
// 退出前若仍有输出则清屏，保证渲染出口处于一致状态。
func (e *Engine) Run(ctx context.Context, hz int) error {
	d, err := Interval(hz)
	if err != nil {
		return err
	}
	tk := time.NewTicker(d)
	defer tk.Stop()
	e.Tick()
	for {
		select {
		case <-ctx.Done():
			e.settle(none)
			return ctx.Err()
		case <-tk.C:
			e.Tick()
		}
	}
}
