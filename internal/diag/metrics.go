package diag

import (
	"sort"
	"sync"

	"subsync/pkg/contract"
)

// 进程内计数：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计与次数）
// - align_total{strategy}
type registry struct {
	mu    sync.Mutex
	ops   map[string]int64
	errs  map[string]int64
	durMS map[string]int64
	durN  map[string]int64
	align [contract.MatchProportional + 1]int64
}

var metrics = newRegistry()

func newRegistry() *registry {
	return &registry{
		ops:   map[string]int64{},
		errs:  map[string]int64{},
		durMS: map[string]int64{},
		durN:  map[string]int64{},
	}
}

// IncOp 累加操作计数（result=success|error|skip）。
func IncOp(comp, stage, result string) {
	metrics.mu.Lock()
	metrics.ops[comp+"/"+stage+"/"+result]++
	metrics.mu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metrics.mu.Lock()
	metrics.errs[comp+"/"+code]++
	metrics.mu.Unlock()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	k := comp + "/" + stage
	metrics.mu.Lock()
	metrics.durMS[k] += durMS
	metrics.durN[k]++
	metrics.mu.Unlock()
}

// IncAlign 记录一次对齐所用策略。
func IncAlign(m contract.MatchStrategy) {
	if int(m) >= len(metrics.align) {
		return
	}
	metrics.mu.Lock()
	metrics.align[m]++
	metrics.mu.Unlock()
}

// Snapshot 为某一时刻的计数拷贝。
type Snapshot struct {
	Ops    map[string]int64
	Errors map[string]int64
	// DurationMS: 累计耗时；DurationN: 观测次数。
	DurationMS map[string]int64
	DurationN  map[string]int64
	Align      map[contract.MatchStrategy]int64
}

// AlignMissRate 返回按比例估算（非文本命中）所占比例；无对齐时为 0。
func (s Snapshot) AlignMissRate() float64 {
	var total int64
	for _, n := range s.Align {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(s.Align[contract.MatchProportional]) / float64(total)
}

// Keys 返回 m 的有序键。
func Keys(m map[string]int64) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// TakeSnapshot 拷贝当前计数。
func TakeSnapshot() Snapshot {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	s := Snapshot{
		Ops:        copyMap(metrics.ops),
		Errors:     copyMap(metrics.errs),
		DurationMS: copyMap(metrics.durMS),
		DurationN:  copyMap(metrics.durN),
		Align:      make(map[contract.MatchStrategy]int64, len(metrics.align)),
	}
	for i, n := range metrics.align {
		if n > 0 {
			s.Align[contract.MatchStrategy(i)] = n
		}
	}
	return s
}

// ResetMetrics 清零（测试与多次运行之间使用）。
func ResetMetrics() {
	fresh := newRegistry()
	metrics.mu.Lock()
	metrics.ops, metrics.errs, metrics.durMS, metrics.durN = fresh.ops, fresh.errs, fresh.durMS, fresh.durN
	metrics.align = fresh.align
	metrics.mu.Unlock()
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
