// Package lang 判定字幕源语言是否已是目标语言。
package lang

import (
	"path"
	"strings"

	"golang.org/x/text/language"
)

// Unknown 表示来源语言未知。
const Unknown = "unknown"

// SameLanguage 报告 source 是否可视为 target：
// 去掉 '-'/'_' 后小写比较，相等或任一方为另一方前缀即视为相同
// （en ~ en-US，zh ~ zh-Hant）。source 为空或 unknown 时恒为 false。
func SameLanguage(source, target string) bool {
	if source == "" || strings.EqualFold(source, Unknown) || target == "" {
		return false
	}
	s, t := squash(source), squash(target)
	if s == "" || t == "" {
		return false
	}
	return s == t || strings.HasPrefix(s, t) || strings.HasPrefix(t, s)
}

func squash(tag string) string {
	r := strings.NewReplacer("-", "", "_", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(tag)))
}

// Canonical 返回 BCP 47 规范形式；无法解析时原样返回（小写）。
func Canonical(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	return t.String()
}

// Valid 报告 tag 是否为可解析的语言标签。
func Valid(tag string) bool {
	if strings.TrimSpace(tag) == "" {
		return false
	}
	_, err := language.Parse(tag)
	return err == nil
}

// FromFileName 从文件名倒数第二段提取语言提示：
// "talk.en.json3" -> "en"，"talk.zh-Hant.srt" -> "zh-Hant"。
// 取不到合法标签时返回 Unknown。
func FromFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	i := strings.LastIndexByte(stem, '.')
	if i < 0 || i == len(stem)-1 {
		return Unknown
	}
	cand := stem[i+1:]
	if len(cand) > 16 {
		return Unknown
	}
	t, err := language.Parse(cand)
	if err != nil || t == language.Und {
		return Unknown
	}
	return t.String()
}
