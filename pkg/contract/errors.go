package contract

import "errors"

// 最小错误分类（用于上层策略判定与 diag.Classify）。
var (
	// ErrInvalidInput: 入参/配置不合法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited: 上游限流（已耗尽插件内的一次重试）。
	ErrRateLimited = errors.New("rate limited")
	// ErrResponseInvalid: 上游响应无法解析为期望形状。
	ErrResponseInvalid = errors.New("response invalid")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrBudgetExceeded: 预算或配额不足（如单请求字符上限）。
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrStaleContext: 结果所属上下文已被替换，应丢弃。
	ErrStaleContext = errors.New("stale context")
	// ErrCacheMiss: 缓存未命中。
	ErrCacheMiss = errors.New("cache miss")
	// ErrLocked: 目标已被其他写者持有。
	ErrLocked = errors.New("locked")
)
