package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"subsync/pkg/contract"
)

// Assembler 输出 JSONL 边车：每行一个句子（含对齐策略），便于离线排查。
type Assembler struct{}

func New() *Assembler { return &Assembler{} }

func (Assembler) Assemble(ctx context.Context, fileID contract.FileID, sentences []contract.Sentence) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range sentences {
		if err := enc.Encode(&sentences[i]); err != nil {
			return nil, fmt.Errorf("%s: encode sentence %d: %w", fileID, i, err)
		}
	}
	return &buf, nil
}

var _ contract.Assembler = Assembler{}
