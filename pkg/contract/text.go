package contract

import (
	"html"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// IsCJK 报告 r 是否落在中日韩文字/标点/全角区段内。
// 相邻任一侧为 CJK 时拼接不插入空格。
func IsCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // 统一汉字
		return true
	case r >= 0x3400 && r <= 0x4DBF: // 扩展 A
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK 标点
		return true
	case r >= 0x3040 && r <= 0x309F: // 平假名
		return true
	case r >= 0x30A0 && r <= 0x30FF: // 片假名
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // 谚文音节
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // 全角/半角形式
		return true
	}
	return false
}

// JoinSep 返回拼接 prev 与 next 时应插入的分隔符（"" 或 " "）。
func JoinSep(prev, next string) string {
	if prev == "" || next == "" {
		return ""
	}
	last, _ := utf8.DecodeLastRuneInString(prev)
	first, _ := utf8.DecodeRuneInString(next)
	if IsCJK(last) || IsCJK(first) {
		return ""
	}
	return " "
}

// JoinText 以 CJK 感知的方式拼接两段文本。
// 合并器、索引构建与对齐器共用同一规则。
func JoinText(prev, next string) string {
	return prev + JoinSep(prev, next) + next
}

// JoinAll 依次拼接 parts（跳过空串）。
func JoinAll(parts []string) string {
	var b strings.Builder
	prev := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(JoinSep(prev, p))
		b.WriteString(p)
		prev = p
	}
	return b.String()
}

// EndsSentence 报告 s（去除首尾空白后）是否以句末标点结尾。
func EndsSentence(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// NormalizeText 对外部来源文本做最小归一：
// HTML 实体反转义、NFC 组合、空白折叠并去除首尾空白。
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	if !norm.NFC.IsNormalString(s) {
		s = norm.NFC.String(s)
	}
	return strings.Join(strings.Fields(s), " ")
}
