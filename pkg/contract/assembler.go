package contract

import (
	"context"
	"io"
)

// Assembler: 将完成的句子序列装配为最终字幕文本（单文件）。
// 约束：
//  1. 输入已按 StartMs 升序；
//  2. 不引入跨文件状态；
//  3. 序列违规（时间倒序/负跨度）返回 ErrInvariantViolation。
type Assembler interface {
	Assemble(ctx context.Context, fileID FileID, sentences []Sentence) (io.Reader, error)
}
