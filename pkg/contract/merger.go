package contract

// Merger: 将原始片段合并为带时间跨度的句子。
// 纯函数、确定性、不返回错误；空输入返回空切片。
// 输出按 StartMs 升序，且已完成间隙填充。
type Merger interface {
	Merge(fragments []RawFragment) []Sentence
}
