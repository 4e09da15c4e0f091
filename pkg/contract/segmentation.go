package contract

// SegmentationKind: 句子序列的来源。
type SegmentationKind uint8

const (
	// SegUnavailable: 无可用句子（无输入或全部失败）。
	SegUnavailable SegmentationKind = iota
	// SegHeuristic: 片段合并器产出（可附逐句译文）。
	SegHeuristic
	// SegAligned: 分块翻译 + 对齐映射产出。
	SegAligned
)

func (k SegmentationKind) String() string {
	switch k {
	case SegHeuristic:
		return "heuristic"
	case SegAligned:
		return "aligned"
	default:
		return "unavailable"
	}
}

// Segmentation: Heuristic(Sentences) | Aligned(Sentences) | Unavailable。
// 仅由编排层的单一决策点构造，不以错误驱动分支。
type Segmentation struct {
	Kind      SegmentationKind
	Sentences []Sentence
}

func Unavailable() Segmentation { return Segmentation{Kind: SegUnavailable} }

func Heuristic(s []Sentence) Segmentation {
	if len(s) == 0 {
		return Unavailable()
	}
	return Segmentation{Kind: SegHeuristic, Sentences: s}
}

func Aligned(s []Sentence) Segmentation {
	if len(s) == 0 {
		return Unavailable()
	}
	return Segmentation{Kind: SegAligned, Sentences: s}
}

// Available 报告是否携带句子。
func (s Segmentation) Available() bool { return s.Kind != SegUnavailable && len(s.Sentences) > 0 }
