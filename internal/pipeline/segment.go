package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"subsync/internal/diag"
	"subsync/internal/lang"
	"subsync/internal/rate"
	"subsync/internal/timeline"
	"subsync/pkg/contract"
)

// - 单点并发：块翻译的并发只在此层管理，原子组件均为同步实现。
// - 单点决策：句子来源（启发式/对齐/不可用）只在 segment 内选择，不由错误驱动分支。
// - 块失败隔离：单块失败不取消其他块；失败块的片段以未翻译的合并句子补位。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader     contract.Reader
	Decoder    contract.Decoder
	Merger     contract.Merger
	Chunker    contract.Chunker
	Aligner    contract.Aligner
	Translator contract.Translator // 可为 nil：仅启发式、不翻译
	Assembler  contract.Assembler
	Sidecar    contract.Assembler // 可为 nil：不写 JSONL 边车
	Writer     contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs      []string
	TargetLang  string
	SourceLang  string // 为空时从文件名推断
	Concurrency int
	// MaxChars: 单块字符上限；<=0 使用分块器默认值。
	MaxChars int
	Strategy Strategy
	// 限流闸门（可选）：若非空，每次翻译请求前调用 Gate.Wait
	Gate    rate.Gate
	GateKey rate.LimitKey
	// TranslatorName 仅用于终端展示。
	TranslatorName string
}

// Report 汇总一次分段的块级结果。
type Report struct {
	Kind      contract.SegmentationKind
	Chunks    int
	Failed    int
	Sentences int
}

// Progress 接收块完成进度（可为 nil）。
type Progress interface {
	Plan(total int)
	Done(done, total, failed int)
}

// Segmenter 将片段序列转换为带译文的句子序列。并发安全。
type Segmenter struct {
	comp   Components
	set    Settings
	logger *diag.Logger
}

// NewSegmenter 校验分段所需组件。
func NewSegmenter(comp Components, set Settings, logger *diag.Logger) (*Segmenter, error) {
	if comp.Merger == nil || comp.Chunker == nil || comp.Aligner == nil {
		return nil, errors.New("pipeline: missing segment components")
	}
	if set.Concurrency < 1 {
		set.Concurrency = 1
	}
	if set.Strategy == "" {
		set.Strategy = StrategyAuto
	}
	return &Segmenter{comp: comp, set: set, logger: logger}, nil
}

// Preview 返回未翻译的启发式句子，用于在翻译完成前先行显示。
func (s *Segmenter) Preview(frags []contract.RawFragment) []contract.Sentence {
	return s.comp.Merger.Merge(frags)
}

// Segment 见 segment；仅在 ctx 结束时返回错误。
func (s *Segmenter) Segment(ctx context.Context, id contract.ContextID, frags []contract.RawFragment) (contract.Segmentation, error) {
	seg, _, err := s.segment(ctx, id, frags, nil)
	return seg, err
}

// path 为分段路径的决策结果。
type path uint8

const (
	pathNone path = iota
	pathMerge
	pathMergeLines
	pathChunks
)

// decide 是句子来源的唯一决策点；对齐路径全部失败后的回退在 segment 中按策略判定。
func (s *Segmenter) decide(id contract.ContextID, n int) path {
	switch {
	case n == 0:
		return pathNone
	case s.comp.Translator == nil, lang.SameLanguage(id.SourceLang, id.TargetLang):
		return pathMerge
	case s.set.Strategy == StrategyHeuristic:
		if SupportsLines(s.comp.Translator) {
			return pathMergeLines
		}
		return pathMerge
	}
	return pathChunks
}

func (s *Segmenter) segment(ctx context.Context, id contract.ContextID, frags []contract.RawFragment, prog Progress) (contract.Segmentation, Report, error) {
	ctx, span := diag.Tracer().Start(ctx, "segment", trace.WithAttributes(
		attribute.String("context", id.Key()),
		attribute.Int("fragments", len(frags)),
	))
	defer span.End()

	var rep Report
	var seg contract.Segmentation
	p := s.decide(id, len(frags))
	span.SetAttributes(attribute.Int("path", int(p)))
	switch p {
	case pathNone:
		seg = contract.Unavailable()
	case pathMerge:
		if s.comp.Translator != nil {
			s.logger.Debug("segmenter", "skip", "source already in target language", map[string]string{
				"source": id.SourceLang, "target": id.TargetLang,
			})
		}
		seg = contract.Heuristic(s.comp.Merger.Merge(frags))
	case pathMergeLines:
		sents := s.comp.Merger.Merge(frags)
		rep.Chunks, rep.Failed = s.translateLines(ctx, id, sents, prog)
		seg = contract.Heuristic(sents)
	case pathChunks:
		var sents []contract.Sentence
		sents, rep.Chunks, rep.Failed = s.alignChunks(ctx, id, frags, prog)
		switch {
		case rep.Failed < rep.Chunks:
			seg = contract.Aligned(sents)
		case s.set.Strategy == StrategyAuto:
			s.logger.Warn("segmenter", "all chunks failed, heuristic fallback", map[string]string{"chunks": strconv.Itoa(rep.Chunks)})
			seg = contract.Heuristic(s.comp.Merger.Merge(frags))
		default:
			seg = contract.Unavailable()
		}
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return contract.Unavailable(), rep, err
	}
	rep.Kind = seg.Kind
	rep.Sentences = len(seg.Sentences)
	span.SetAttributes(attribute.String("kind", seg.Kind.String()), attribute.Int("sentences", rep.Sentences))
	return seg, rep, nil
}

// alignChunks 并发翻译各块并映射回时间轴，返回合并排序后的句子、块数与失败数。
func (s *Segmenter) alignChunks(ctx context.Context, id contract.ContextID, frags []contract.RawFragment, prog Progress) ([]contract.Sentence, int, int) {
	ix := s.comp.Chunker.BuildIndex(frags)
	chunks := s.comp.Chunker.Split(ix, s.set.MaxChars)
	if prog != nil {
		prog.Plan(len(chunks))
	}
	parts := make([][]contract.Sentence, len(chunks))
	var (
		mu           sync.Mutex
		done, failed int
	)
	var g errgroup.Group
	g.SetLimit(s.set.Concurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			out, err := s.translateChunk(ctx, id, ix, i, ch)
			if err != nil {
				// 失败块保留原文显示
				out = s.comp.Merger.Merge(rawOf(ix.Fragments[ch.FragmentStartIdx : ch.FragmentEndIdx+1]))
			}
			parts[i] = out
			mu.Lock()
			done++
			if err != nil {
				failed++
			}
			d, f := done, failed
			mu.Unlock()
			if prog != nil {
				prog.Done(d, len(chunks), f)
			}
			return nil
		})
	}
	_ = g.Wait()
	return timeline.Finalize(parts...), len(chunks), failed
}

func (s *Segmenter) translateChunk(ctx context.Context, id contract.ContextID, ix contract.FragmentIndex, i int, ch contract.Chunk) ([]contract.Sentence, error) {
	cid := strconv.Itoa(i)
	chars := utf8.RuneCountInString(ch.Text)
	ctx, span := diag.Tracer().Start(ctx, "chunk.translate", trace.WithAttributes(
		attribute.Int("chunk.index", i),
		attribute.Int("chunk.chars", chars),
		attribute.Int("chunk.fragments", ch.Fragments()),
	))
	defer span.End()
	fail := func(comp, msg string, err error, t *diag.Timer) ([]contract.Sentence, error) {
		logFailure(s.logger, comp, msg, err, t.Since(), id.VideoID, cid)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.set.Gate != nil {
		s.logger.DebugStart("gate", "ask", id.VideoID, cid, map[string]string{"requests": "1", "chars": strconv.Itoa(chars)})
		if err := s.set.Gate.Wait(ctx, rate.Ask{Key: s.set.GateKey, Requests: 1, Chars: chars}); err != nil {
			return fail("gate", "wait failed", err, nil)
		}
	}

	t := s.logger.StartWithKV("translator", "translate", id.VideoID, cid, map[string]string{"chars": strconv.Itoa(chars)})
	segs, err := s.comp.Translator.TranslateChunk(ctx, ch.Text, id.TargetLang)
	if err != nil {
		return fail("translator", "translate failed", err, t)
	}
	segs = contract.CleanSegments(segs)
	if len(segs) == 0 {
		return fail("translator", "empty translation", fmt.Errorf("chunk %d: %w", i, contract.ErrResponseInvalid), t)
	}
	logSuccess(t, "translator", "translate", len(segs))

	at := s.logger.StartWith("aligner", "map", id.VideoID, cid)
	out := s.comp.Aligner.Map(segs, ix, ch.CharStart)
	var miss int
	for _, st := range out {
		diag.IncAlign(st.Match)
		if st.Match == contract.MatchProportional {
			miss++
		}
	}
	logSuccess(at, "aligner", "map", len(out))
	span.SetAttributes(attribute.Int("align.proportional", miss))
	return out, nil
}

// translateLines 按字符预算分批逐行翻译启发式句子，译文原地写回。
func (s *Segmenter) translateLines(ctx context.Context, id contract.ContextID, sents []contract.Sentence, prog Progress) (int, int) {
	lt, ok := s.comp.Translator.(contract.LineTranslator)
	if !ok {
		return 0, 0
	}
	batches := lineBatches(sents, s.maxChars())
	if prog != nil {
		prog.Plan(len(batches))
	}
	var (
		mu           sync.Mutex
		done, failed int
	)
	var g errgroup.Group
	g.SetLimit(s.set.Concurrency)
	for bi, b := range batches {
		g.Go(func() error {
			err := s.translateBatch(ctx, id, lt, sents[b[0]:b[1]], bi)
			mu.Lock()
			done++
			if err != nil {
				failed++
			}
			d, f := done, failed
			mu.Unlock()
			if prog != nil {
				prog.Done(d, len(batches), f)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(batches), failed
}

func (s *Segmenter) translateBatch(ctx context.Context, id contract.ContextID, lt contract.LineTranslator, sents []contract.Sentence, bi int) error {
	cid := "l" + strconv.Itoa(bi)
	lines := make([]string, len(sents))
	chars := 0
	for i, st := range sents {
		lines[i] = st.Text
		chars += utf8.RuneCountInString(st.Text) + 1
	}
	if s.set.Gate != nil {
		if err := s.set.Gate.Wait(ctx, rate.Ask{Key: s.set.GateKey, Requests: 1, Chars: chars}); err != nil {
			logFailure(s.logger, "gate", "wait failed", err, nil, id.VideoID, cid)
			return err
		}
	}
	t := s.logger.StartWith("translator", "translate_lines", id.VideoID, cid)
	out, err := lt.TranslateLines(ctx, lines, id.TargetLang)
	if err != nil {
		logFailure(s.logger, "translator", "translate lines failed", err, t.Since(), id.VideoID, cid)
		return err
	}
	n := 0
	for i := range sents {
		if i < len(out) && out[i] != "" {
			sents[i].Translation = out[i]
			n++
		}
	}
	logSuccess(t, "translator", "translate_lines", n)
	return nil
}

func (s *Segmenter) maxChars() int {
	if s.set.MaxChars > 0 {
		return s.set.MaxChars
	}
	if mc, ok := s.comp.Chunker.(interface{ MaxChars() int }); ok {
		return mc.MaxChars()
	}
	return 4000
}

// lineBatches 按字符预算（含换行分隔）切分为 [from, to) 区间；单句超限时独占一批。
func lineBatches(sents []contract.Sentence, maxChars int) [][2]int {
	var out [][2]int
	start, size := 0, 0
	for i, st := range sents {
		n := utf8.RuneCountInString(st.Text) + 1
		if i > start && size+n > maxChars {
			out = append(out, [2]int{start, i})
			start, size = i, 0
		}
		size += n
	}
	if start < len(sents) {
		out = append(out, [2]int{start, len(sents)})
	}
	return out
}

func rawOf(ifs []contract.IndexedFragment) []contract.RawFragment {
	out := make([]contract.RawFragment, len(ifs))
	for i, f := range ifs {
		out[i] = contract.RawFragment{Text: f.Text, StartMs: f.StartMs, DurationMs: f.EndMs - f.StartMs}
	}
	return out
}
