package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"subsync/internal/diag"
	"subsync/internal/lang"
	"subsync/pkg/contract"
)

// ContextFor 由文件与运行设置得到翻译上下文；源语言为空时从文件名推断。
func ContextFor(fid contract.FileID, set Settings) contract.ContextID {
	src := set.SourceLang
	if src == "" {
		src = lang.FromFileName(string(fid))
	}
	return contract.ContextID{VideoID: string(fid), SourceLang: src, TargetLang: set.TargetLang}
}

// Decode 逐个读取并解码输入文件，不做分段（merge/play 使用）。
func Decode(ctx context.Context, comp Components, roots []string, logger *diag.Logger, yield func(fid contract.FileID, frags []contract.RawFragment) error) error {
	if comp.Reader == nil || comp.Decoder == nil {
		return errors.New("pipeline: missing reader/decoder")
	}
	return comp.Reader.Iterate(ctx, roots, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		dt := logger.StartWith("decoder", "decode", string(fid), "")
		frags, err := comp.Decoder.Decode(ctx, fid, rc)
		if err != nil {
			logFailure(logger, "decoder", "decode failed", err, dt.Since(), string(fid), "")
			return fmt.Errorf("file %s: decoder decode: %w", fid, err)
		}
		logSuccess(dt, "decoder", "decode", len(frags))
		return yield(fid, frags)
	})
}
