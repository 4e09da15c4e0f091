package prompt

import "subsync/pkg/contract"

// MakeEstimator 返回近似 token 估算器：tokens ≈ ceil(utf8 字节数 / bytesPerToken)。
// bytesPerToken<=0 时采用 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// EffectiveMaxTokens 预扣固定提示开销后的有效预算，返回 (effectiveMax, overhead)。
// maxTokens<=0 时返回 (0,0)。
func EffectiveMaxTokens(pb contract.PromptBuilder, bytesPerToken int, maxTokens int) (int, int) {
	if maxTokens <= 0 {
		return 0, 0
	}
	overhead := pb.EstimateOverheadTokens(MakeEstimator(bytesPerToken))
	return maxTokens - overhead, overhead
}

// ChunkCharBudget 将上下文 token 上限折算为分块字符上限。
// 一个块的原文会出现三次（输入一次，输出 original + translated 各一次），
// 因此可用字节约为 effective*bytesPerToken/3；结果不超过 maxChars。
// maxTokens<=0 时原样返回 maxChars；预算耗尽返回 ErrBudgetExceeded。
func ChunkCharBudget(pb contract.PromptBuilder, bytesPerToken, maxTokens, maxChars int) (int, error) {
	if maxTokens <= 0 {
		return maxChars, nil
	}
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	eff, _ := EffectiveMaxTokens(pb, bpt, maxTokens)
	chars := eff * bpt / 3
	if chars <= 0 {
		return 0, contract.ErrBudgetExceeded
	}
	if maxChars > 0 && chars > maxChars {
		chars = maxChars
	}
	return chars, nil
}
