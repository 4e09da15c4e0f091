package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "subsync/internal/config"
	"subsync/internal/pipeline"
	"subsync/pkg/contract"
)

func newMergeCommand(a *app) *cobra.Command {
	var (
		f       runFlags
		segment bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "merge <input>",
		Short: "解码并打印分句结果（默认仅启发式合并，不翻译）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			cfg, err := a.prepare(&f, args, func(c *cfgpkg.Config) {
				if !segment {
					c.Translator = ""
				}
			})
			if err != nil {
				return configError(err)
			}
			asm, err := cfgpkg.Assemble(cfg, a.logger)
			if err != nil {
				return configError(fmt.Errorf("装配失败: %w", err))
			}
			defer asm.Close()
			seg, err := pipeline.NewSegmenter(asm.Components, asm.Settings, a.logger)
			if err != nil {
				return configError(err)
			}
			ctx := cmd.Context()
			return pipeline.Decode(ctx, asm.Components, cfg.Inputs, a.logger, func(fid contract.FileID, frags []contract.RawFragment) error {
				sents, kind, err := a.sentences(ctx, seg, segment, pipeline.ContextFor(fid, asm.Settings), frags)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "%s | %s | 片段 %d | 句子 %d\n", fid, kind, len(frags), len(sents))
				if len(sents) > 0 {
					_, _ = fmt.Fprintln(a.stdout, sentenceTable(sents, limit))
				}
				return nil
			})
		},
	}
	bindRunFlags(cmd, &f)
	cmd.Flags().BoolVar(&segment, "segment", false, "完整分段（含翻译与对齐）而非仅启发式预览")
	cmd.Flags().IntVar(&limit, "limit", 0, "最多显示的句子数（0 不限）")
	return cmd
}

func (a *app) sentences(ctx context.Context, seg *pipeline.Segmenter, full bool, id contract.ContextID, frags []contract.RawFragment) ([]contract.Sentence, string, error) {
	if !full {
		return seg.Preview(frags), contract.SegHeuristic.String(), nil
	}
	res, err := seg.Segment(ctx, id, frags)
	if err != nil {
		return nil, "", err
	}
	return res.Sentences, res.Kind.String(), nil
}
