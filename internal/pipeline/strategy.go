package pipeline

import (
	"fmt"
	"strings"

	"subsync/pkg/contract"
)

// Strategy 选择句子来源。
type Strategy string

const (
	// StrategyAuto: 有翻译器时走分块对齐；全部块失败时回退启发式。
	StrategyAuto Strategy = "auto"
	// StrategyAligned: 仅分块对齐；全部块失败时结果为 Unavailable。
	StrategyAligned Strategy = "aligned"
	// StrategyHeuristic: 片段合并 + 可选逐行翻译。
	StrategyHeuristic Strategy = "heuristic"
)

// ParseStrategy 解析配置值（空串为 auto）。
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyAuto, nil
	case StrategyAuto, StrategyAligned, StrategyHeuristic:
		return st, nil
	}
	return "", fmt.Errorf("%w: strategy %q", contract.ErrInvalidInput, s)
}
