package contract

import (
	"context"
	"io"
)

// Decoder: 将单个字幕源字节流解码为有序 RawFragment 序列。
// 约束：
// 1) 不跨文件合并；
// 2) 保持时间顺序（按 StartMs 非降序输出）；
// 3) 文本经 NormalizeText 归一，空白事件直接丢弃；
// 4) 无内部并发、幂等。
type Decoder interface {
	Decode(ctx context.Context, fileID FileID, r io.Reader) ([]RawFragment, error)
}
