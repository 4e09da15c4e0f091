package contract

import "fmt"

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// RawFragment: 单条 ASR 字幕事件（接收后只读）。
// 约束：StartMs ≥ 0，DurationMs ≥ 0；Text 可能为空白（由消费方跳过）。
type RawFragment struct {
	Text       string `json:"text"`
	StartMs    int64  `json:"start_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// EndMs 返回片段结束时间（开区间右端）。
func (f RawFragment) EndMs() int64 { return f.StartMs + f.DurationMs }

// MatchStrategy: 对齐阶段命中的匹配策略。
// 启发式合并产出的句子为 MatchNone。
type MatchStrategy uint8

const (
	MatchNone MatchStrategy = iota
	MatchExact
	MatchFold
	MatchStripped
	MatchProportional
)

var matchNames = [...]string{"none", "exact", "fold", "stripped", "proportional"}

func (m MatchStrategy) String() string {
	if int(m) < len(matchNames) {
		return matchNames[m]
	}
	return fmt.Sprintf("match(%d)", uint8(m))
}

// MarshalText 以名称序列化，便于 JSONL 旁路文件阅读。
func (m MatchStrategy) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *MatchStrategy) UnmarshalText(b []byte) error {
	for i, n := range matchNames {
		if n == string(b) {
			*m = MatchStrategy(i)
			return nil
		}
	}
	return fmt.Errorf("%w: match strategy %q", ErrInvalidInput, string(b))
}

// Sentence: 显示粒度的字幕单元。
// 约束：StartMs ≤ EndMs；Translation 为空表示尚无译文。
// 发布给同步引擎后只读。
type Sentence struct {
	Text        string        `json:"text"`
	StartMs     int64         `json:"start_ms"`
	EndMs       int64         `json:"end_ms"`
	Translation string        `json:"translation,omitempty"`
	Match       MatchStrategy `json:"match,omitempty"`
}

// HasTranslation 报告是否已附加译文。
func (s Sentence) HasTranslation() bool { return s.Translation != "" }

// Contains 报告 t 是否落在 [StartMs, EndMs) 内。
func (s Sentence) Contains(t int64) bool { return s.StartMs <= t && t < s.EndMs }

// IndexedFragment: FragmentIndex 内的片段视图。
// CharStart/CharEnd 为 JoinedText 的字节偏移（半开区间）；
// RuneStart/RuneEnd 为对应的字符计数，用于字符预算。
type IndexedFragment struct {
	Text      string
	StartMs   int64
	EndMs     int64
	CharStart int
	CharEnd   int
	RuneStart int
	RuneEnd   int
}

// FragmentIndex: 片段拼接后的扁平偏移视图，构建后只读。
type FragmentIndex struct {
	JoinedText string
	Fragments  []IndexedFragment
}

// RuneLen 返回 JoinedText 的字符数。
func (ix FragmentIndex) RuneLen() int {
	if n := len(ix.Fragments); n > 0 {
		return ix.Fragments[n-1].RuneEnd
	}
	return 0
}

// Chunk: FragmentIndex 的连续切片，对应一次翻译请求。
// FragmentEndIdx 为闭区间。
type Chunk struct {
	Text             string
	CharStart        int
	CharEnd          int
	FragmentStartIdx int
	FragmentEndIdx   int
}

// Fragments 返回该块覆盖的片段数量。
func (c Chunk) Fragments() int { return c.FragmentEndIdx - c.FragmentStartIdx + 1 }

// TranslatedSegment: 翻译后端针对单个 Chunk 的有序输出。
type TranslatedSegment struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

// ContextID: 视频身份 + 源语言 + 目标语言。
// 任一字段变化即视为新上下文，旧上下文的句子整体作废。
type ContextID struct {
	VideoID    string
	SourceLang string
	TargetLang string
}

// Key 返回稳定的字符串形式（日志/缓存命名空间）。
func (c ContextID) Key() string {
	return c.VideoID + "|" + c.SourceLang + "|" + c.TargetLang
}

func (c ContextID) IsZero() bool { return c == ContextID{} }
