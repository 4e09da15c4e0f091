package contract

// Aligner: 将单个块的翻译输出映射回片段时间轴。
// chunkCharStart 为该块在 JoinedText 中的起始字节偏移（游标初值）。
// 约束：
//  1. 游标单调前进；
//  2. 原文或译文非空的段各产出恰好一个 Sentence；
//  3. 输出携带绝对时间，可与其他块的结果直接合并排序；
//  4. 不共享跨块可变状态。
type Aligner interface {
	Map(segments []TranslatedSegment, ix FragmentIndex, chunkCharStart int) []Sentence
}
