package contract

import "context"

// Prompt: 不透明载荷，由具体 PromptBuilder/Translator 配对解释。
type Prompt any

// Message: 最小会话消息形状（可用于 ChatPrompt）。
type Message struct {
	Role    string
	Content string
}

// TextPrompt: 文本型提示词载荷。
type TextPrompt string

// ChatPrompt: 会话型提示词载荷（最小集合）。
type ChatPrompt []Message

// PromptBuilder: 基于块文本与目标语言构造确定性的 Prompt。
// 约束：
//   - 纯计算，不做 I/O；
//   - 不隐式修改块文本；
//   - 失败快速返回错误。
type PromptBuilder interface {
	Build(ctx context.Context, text, targetLang string) (Prompt, error)
	// EstimateOverheadTokens: 估算与块无关的固定提示词开销（system/规则/schema）。
	EstimateOverheadTokens(estimate TokenEstimator) int
}

// TokenEstimator: 文本→token 的近似估算函数。
// 典型实现：ceil(len(utf8_bytes)/BytesPerToken)。
type TokenEstimator func(s string) int
