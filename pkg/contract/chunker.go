package contract

// Chunker: 构建片段偏移索引，并按字符预算切分为翻译块。
// 约束：
//  1. 块边界即片段边界（不在片段内部切分）；
//  2. 块有序且不相交，覆盖全部片段各一次；
//  3. 除单个超长片段外，块文本字符数不超过 maxChars；
//  4. maxChars ≤ 0 时使用实现配置的默认值。
type Chunker interface {
	BuildIndex(fragments []RawFragment) FragmentIndex
	Split(ix FragmentIndex, maxChars int) []Chunk
}
