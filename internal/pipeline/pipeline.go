package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	pathpkg "path"
	"strings"
	"time"

	"subsync/internal/diag"
	"subsync/pkg/contract"
)

// Run 执行完整流水线：Reader → Decoder → Segment(Merger | Chunker → (Gate) → Translator → Aligner) → Assembler → Writer。
// 约束：
// - 所有组件均为同步实现；翻译调用是并发的唯一重负载点，受 Concurrency 与 Gate 控制；
// - 单块翻译失败只降低覆盖率；读取、解码、装配、写出的错误终止运行并返回首错。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	seg, err := NewSegmenter(comp, set, logger)
	if err != nil {
		return err
	}
	rtimer := logger.Start("reader", "iterate")
	files := 0
	err = comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		files++
		if err := seg.runFile(ctx, comp, fid, rc); err != nil {
			return fmt.Errorf("file %s: %w", fid, err)
		}
		return nil
	})
	if err != nil {
		logFailure(logger, "reader", "iterate failed", err, rtimer.Since(), "", "")
		return fmt.Errorf("reader iterate: %w", err)
	}
	logSuccess(rtimer, "reader", "iterate", files)
	return nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Decoder == nil || c.Merger == nil || c.Chunker == nil || c.Aligner == nil || c.Assembler == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	if strings.TrimSpace(s.TargetLang) == "" {
		return fmt.Errorf("pipeline: target_lang required: %w", contract.ErrInvalidInput)
	}
	return nil
}

// ArtifactName 返回输出工件名：<目录>/<源文件名去扩展>.<目标语言><ext>。
func ArtifactName(fid contract.FileID, targetLang, ext string) contract.ArtifactID {
	dir := pathpkg.Dir(string(fid))
	name := fid.Stem() + "." + targetLang + ext
	if dir == "." || dir == "/" {
		return contract.ArtifactID(name)
	}
	return contract.ArtifactID(pathpkg.Join(dir, name))
}

func (s *Segmenter) runFile(ctx context.Context, comp Components, fid contract.FileID, rc io.Reader) error {
	logger := s.logger
	term := diag.GetTerminal()
	fileStart := time.Now()
	prog := &termProgress{t: term, fid: string(fid)}
	var rep Report
	ok := false
	defer func() {
		prog.ensureStarted()
		term.FileFinish(ok, rep.Kind.String(), rep.Sentences, time.Since(fileStart))
	}()

	dt := logger.StartWith("decoder", "decode", string(fid), "")
	frags, err := comp.Decoder.Decode(ctx, fid, rc)
	if err != nil {
		logFailure(logger, "decoder", "decode failed", err, dt.Since(), string(fid), "")
		return fmt.Errorf("decoder decode: %w", err)
	}
	logSuccess(dt, "decoder", "decode", len(frags))

	id := ContextFor(fid, s.set)

	st := logger.StartWith("segmenter", "segment", string(fid), "")
	var res contract.Segmentation
	res, rep, err = s.segment(ctx, id, frags, prog)
	if err != nil {
		logFailure(logger, "segmenter", "segment aborted", err, st.Since(), string(fid), "")
		return err
	}
	logSuccess(st, "segmenter", "segment", rep.Sentences)
	if rep.Failed > 0 {
		logger.Warn("segmenter", "partial coverage", map[string]string{
			"file_id": string(fid),
			"chunks":  fmt.Sprint(rep.Chunks),
			"failed":  fmt.Sprint(rep.Failed),
		})
	}

	if err := s.emit(ctx, comp.Assembler, comp.Writer, fid, ArtifactName(fid, s.set.TargetLang, ".srt"), res.Sentences); err != nil {
		return err
	}
	if comp.Sidecar != nil {
		if err := s.emit(ctx, comp.Sidecar, comp.Writer, fid, ArtifactName(fid, s.set.TargetLang, ".jsonl"), res.Sentences); err != nil {
			return err
		}
	}
	ok = true
	return nil
}

// emit 装配并写出单个工件。
func (s *Segmenter) emit(ctx context.Context, asm contract.Assembler, w contract.Writer, fid contract.FileID, id contract.ArtifactID, sents []contract.Sentence) error {
	at := s.logger.StartWith("assembler", "assemble", string(id), "")
	r, err := asm.Assemble(ctx, fid, sents)
	if err != nil {
		logFailure(s.logger, "assembler", "assemble failed", err, at.Since(), string(id), "")
		return fmt.Errorf("assembler assemble: %w", err)
	}
	logSuccess(at, "assembler", "assemble", len(sents))

	wt := s.logger.StartWith("writer", "write", string(id), "")
	if err := w.Write(ctx, id, r); err != nil {
		logFailure(s.logger, "writer", "write failed", err, wt.Since(), string(id), "")
		return fmt.Errorf("writer write: %w", err)
	}
	logSuccess(wt, "writer", "write", 1)
	return nil
}

// termProgress 将块进度转发到终端提示。
type termProgress struct {
	t       *diag.Terminal
	fid     string
	started bool
}

func (p *termProgress) Plan(total int) {
	p.started = true
	p.t.FileStart(p.fid, total)
}

func (p *termProgress) Done(done, total, failed int) { p.t.FileProgress(done, total, failed) }

func (p *termProgress) ensureStarted() {
	if !p.started {
		p.Plan(0)
	}
}
