package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "subsync/internal/config"
	"subsync/internal/diag"
	"subsync/internal/pipeline"
	"subsync/pkg/contract"
)

var pipelineRun = pipeline.Run

func newTranslateCommand(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "translate [inputs...]",
		Short: "翻译字幕文件，写出 SRT 与 JSONL 边车",
		Long: "位置参数为输入根（文件/目录，或 \"-\" 表示 STDIN，不能与其他根混用）；" +
			"缺省时使用配置中的 inputs。",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			cfg, err := a.prepare(&f, args, nil)
			if err != nil {
				return configError(err)
			}
			if strings.TrimSpace(cfg.TargetLang) == "" {
				return configError(fmt.Errorf("target_lang required: %w", contract.ErrInvalidInput))
			}
			asm, err := cfgpkg.Assemble(cfg, a.logger)
			if err != nil {
				return configError(fmt.Errorf("装配失败: %w", err))
			}
			defer asm.Close()
			return a.translate(cmd, cfg, asm)
		},
	}
	bindRunFlags(cmd, &f)
	return cmd
}

func (a *app) translate(cmd *cobra.Command, cfg cfgpkg.Config, asm *cfgpkg.Assembly) error {
	start := time.Now()
	// 终端信息提示（非日志）
	term := diag.NewTerminal(a.stderr, a.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(cfg.Concurrency, translatorLabel(cfg))

	t := a.logger.Start("pipeline", "run")
	if err := pipelineRun(cmd.Context(), asm.Components, asm.Settings, a.logger); err != nil {
		code := diag.Classify(err)
		a.logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		term.RunFinish(false, time.Since(start))
		return err
	}
	t.Finish("run", 0)
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	if rate := diag.TakeSnapshot().AlignMissRate(); rate > 0 {
		a.logger.Warn("aligner", "proportional fallback used", map[string]string{"miss_rate": fmt.Sprintf("%.3f", rate)})
	}
	term.RunFinish(true, time.Since(start))
	return nil
}
