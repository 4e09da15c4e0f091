package auto

import (
	"context"
	"io"
	"path"
	"strings"

	"subsync/pkg/contract"
	"subsync/plugins/decoder/srt"
	"subsync/plugins/decoder/timedtext"
)

// Decoder 按扩展名分派：.srt 走 SRT，其余走时间文本（JSON3/XML）。
type Decoder struct {
	srt   *srt.Decoder
	timed *timedtext.Decoder
}

func New() *Decoder {
	return &Decoder{
		srt:   srt.New(&srt.Options{AllowExts: []string{}}),
		timed: timedtext.New(nil),
	}
}

func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.RawFragment, error) {
	switch strings.ToLower(path.Ext(string(fileID))) {
	case ".srt":
		return d.srt.Decode(ctx, fileID, r)
	default:
		return d.timed.Decode(ctx, fileID, r)
	}
}

var _ contract.Decoder = (*Decoder)(nil)
