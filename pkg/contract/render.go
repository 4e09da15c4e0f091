package contract

import (
	"fmt"
	"strings"
)

// DisplayMode: 渲染模式。
type DisplayMode uint8

const (
	DisplayBilingual DisplayMode = iota
	DisplayOriginal
	DisplayTranslation
)

func (m DisplayMode) String() string {
	switch m {
	case DisplayOriginal:
		return "original"
	case DisplayTranslation:
		return "translation"
	default:
		return "bilingual"
	}
}

// ParseDisplayMode 解析配置/命令行中的模式名（大小写不敏感）。
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bilingual", "both":
		return DisplayBilingual, nil
	case "original":
		return DisplayOriginal, nil
	case "translation", "translated":
		return DisplayTranslation, nil
	}
	return DisplayBilingual, fmt.Errorf("%w: display mode %q", ErrInvalidInput, s)
}

// Renderer: 渲染出口。仅在句子索引变化（或模式变化）时调用。
// translation 为空表示无译文。调用始终发生在同步循环所在的单一 goroutine。
type Renderer interface {
	Render(original, translation string, mode DisplayMode)
	Clear()
}

// Clock: 单调前进但可跳转的播放时钟（毫秒）。每个 tick 采样一次。
type Clock interface {
	NowMs() int64
}

// CaptionSignal: 可选的“当前是否有字幕显示”带外信号。
type CaptionSignal interface {
	CaptionVisible() bool
}
