package contract

import "context"

// Translator: 外部翻译协作方（请求/响应）。
// 单次调用、同步返回；应尊重 ctx 取消/超时。
// 输出保持原文顺序；失败时调用方将该块视为无结果。
type Translator interface {
	TranslateChunk(ctx context.Context, text, targetLang string) ([]TranslatedSegment, error)
}

// LineTranslator: 可选扩展，逐行翻译（启发式路径使用）。
// 返回切片与 lines 等长；无法对应的行返回空串。
type LineTranslator interface {
	TranslateLines(ctx context.Context, lines []string, targetLang string) ([]string, error)
}

// CleanSegments 去除首尾空白并丢弃两侧均为空的段，返回新切片。
func CleanSegments(segs []TranslatedSegment) []TranslatedSegment {
	out := make([]TranslatedSegment, 0, len(segs))
	for _, s := range segs {
		s.Original = NormalizeText(s.Original)
		s.Translated = NormalizeText(s.Translated)
		if s.Original == "" && s.Translated == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
