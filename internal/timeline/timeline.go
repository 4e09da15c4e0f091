// Package timeline 提供句子序列上的时间查找与整理：
// 二分查找、最近句回退、排序与间隙填充。
package timeline

import (
	"sort"

	"subsync/pkg/contract"
)

// NotFound: 查找未命中。
const NotFound = -1

// FindByTime 在按 StartMs 升序的 sentences 中二分查找包含 t 的句子，
// 区间为 [StartMs, EndMs)。未命中返回 NotFound。
func FindByTime(sentences []contract.Sentence, t int64) int {
	lo, hi := 0, len(sentences)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		s := sentences[mid]
		switch {
		case t < s.StartMs:
			hi = mid - 1
		case t >= s.EndMs:
			lo = mid + 1
		default:
			return mid
		}
	}
	return NotFound
}

// FindClosest 先做精确查找；未命中时线性扫描首个区间位于 t 或其之后的句子。
// t 晚于所有句子时返回 NotFound。
func FindClosest(sentences []contract.Sentence, t int64) int {
	if i := FindByTime(sentences, t); i != NotFound {
		return i
	}
	for i, s := range sentences {
		if s.StartMs >= t || s.EndMs > t {
			return i
		}
	}
	return NotFound
}

// SortByStart 按 StartMs 稳定升序排序（原地）。
func SortByStart(sentences []contract.Sentence) {
	sort.SliceStable(sentences, func(i, j int) bool {
		return sentences[i].StartMs < sentences[j].StartMs
	})
}

// GapFill 使相邻句子首尾相接，原地修改：
// 存在空隙时将 EndMs 延伸到下一句的 StartMs；
// 与下一句重叠时截断到下一句的 StartMs，保证二分查找的区间互不相交。
// 下一句起点不晚于本句起点时（对齐结果可能同起点），先把下一句起点后移到
// 本句终点；若这样会吞掉其中一句，则两句平分二者的并集。
// 不改变文本；首句之前与末句之后不做处理。输入须已按 StartMs 升序。
func GapFill(sentences []contract.Sentence) {
	for i := 0; i+1 < len(sentences); i++ {
		cur, next := &sentences[i], &sentences[i+1]
		if next.StartMs <= cur.StartMs {
			b := min(cur.EndMs, next.EndMs)
			if b <= cur.StartMs || b >= next.EndMs {
				end := max(cur.EndMs, next.EndMs)
				b = cur.StartMs + (end-cur.StartMs)/2
				next.EndMs = end
			}
			next.StartMs = b
		}
		cur.EndMs = next.StartMs
	}
}

// Finalize 合并多个块的对齐结果：拼接、按 StartMs 稳定排序、间隙填充。
// 返回新切片，不修改入参。
func Finalize(parts ...[]contract.Sentence) []contract.Sentence {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]contract.Sentence, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	SortByStart(out)
	GapFill(out)
	return out
}
