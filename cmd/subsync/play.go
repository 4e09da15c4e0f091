package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "subsync/internal/config"
	"subsync/internal/pipeline"
	"subsync/internal/session"
	"subsync/internal/syncengine"
	"subsync/pkg/contract"
	"subsync/plugins/clock/playback"
)

var errStopIteration = errors.New("stop iteration")

// playTail 为最后一句结束后继续播放的时长（毫秒）。
const playTail = 500

func newPlayCommand(a *app) *cobra.Command {
	var (
		f       runFlags
		offset  int64
		mode    string
		hz      int
		speed   float64
		startMs int64
	)
	cmd := &cobra.Command{
		Use:   "play <input>",
		Short: "按模拟播放时钟在终端同步显示字幕",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.close()
			flags := cmd.Flags()
			cfg, err := a.prepare(&f, args, func(c *cfgpkg.Config) {
				if flags.Changed("offset") {
					c.Sync.OffsetMs = offset
				}
				if flags.Changed("mode") {
					c.Sync.DisplayMode = mode
				}
				if flags.Changed("hz") {
					c.Sync.TickHz = hz
				}
			})
			if err != nil {
				return configError(err)
			}
			if speed <= 0 {
				return configError(fmt.Errorf("speed must be > 0: %w", contract.ErrInvalidInput))
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
			render, err := cfgpkg.NewRenderer(cfg, a.stdout)
			if err != nil {
				return configError(err)
			}
			dm, _ := contract.ParseDisplayMode(cfg.Sync.DisplayMode)

			// 只播放第一个输入文件
			var (
				fid   contract.FileID
				frags []contract.RawFragment
			)
			err = pipeline.Decode(cmd.Context(), asm.Components, cfg.Inputs, a.logger, func(id contract.FileID, fs []contract.RawFragment) error {
				fid, frags = id, fs
				return errStopIteration
			})
			if err != nil && !errors.Is(err, errStopIteration) {
				return err
			}
			if len(frags) == 0 {
				_, _ = fmt.Fprintln(a.stderr, "[play] 无字幕片段")
				return nil
			}

			clk := playback.New(nil)
			clk.SetRate(speed)
			clk.Seek(startMs)
			eng := syncengine.New(clk, render, syncengine.WithOffset(cfg.Sync.OffsetMs), syncengine.WithMode(dm))
			sess := session.New(eng, seg, a.logger)
			return a.play(cmd.Context(), playJob{
				engine: eng, clock: clk, session: sess,
				id: pipeline.ContextFor(fid, asm.Settings), frags: frags, hz: cfg.Sync.TickHz,
			})
		},
	}
	bindRunFlags(cmd, &f)
	fs := cmd.Flags()
	fs.Int64Var(&offset, "offset", 0, "字幕偏移（毫秒，正值使字幕延后）")
	fs.StringVar(&mode, "mode", "", "显示模式 bilingual|original|translation")
	fs.IntVar(&hz, "hz", 0, "同步刷新频率（默认 60）")
	fs.Float64Var(&speed, "speed", 1, "播放速率")
	fs.Int64Var(&startMs, "start", 0, "起始播放位置（毫秒）")
	return cmd
}

type playJob struct {
	engine  *syncengine.Engine
	clock   *playback.Clock
	session *session.Session
	id      contract.ContextID
	frags   []contract.RawFragment
	hz      int
}

// play 发布预览并后台分段，同时运行同步循环，直到播放越过最后一句或 ctx 结束。
func (a *app) play(parent context.Context, p playJob) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	job := p.session.Ingest(ctx, p.id, p.frags)
	end := lastEnd(p.frags)
	p.clock.Play()

	errc := make(chan error, 1)
	go func() { errc <- p.engine.Run(ctx, p.hz) }()

	done := job.Done()
	watch := time.NewTicker(50 * time.Millisecond)
	defer watch.Stop()
	for {
		select {
		case err := <-errc:
			// 等待后台分段退出后再释放缓存等资源
			cancel()
			<-job.Done()
			return a.finishPlay(parent, p, err)
		case <-done:
			done = nil
			res, err := job.Wait(ctx)
			kv := map[string]string{"context": p.id.Key(), "kind": res.Kind.String(), "sentences": fmt.Sprint(len(res.Sentences))}
			if err != nil {
				kv["error"] = err.Error()
			}
			a.logger.Debug("session", "finish", "segmentation ready", kv)
		case <-watch.C:
			if p.clock.NowMs()-p.engine.Offset() > end+playTail {
				cancel()
			}
		}
	}
}

func (a *app) finishPlay(parent context.Context, p playJob, err error) error {
	renders, clears := p.engine.Stats()
	_, _ = fmt.Fprintf(a.stderr, "[play] %s | 渲染 %d | 清除 %d\n", p.id.VideoID, renders, clears)
	if errors.Is(err, context.Canceled) && parent.Err() == nil {
		return nil
	}
	return err
}

func lastEnd(frags []contract.RawFragment) int64 {
	var end int64
	for _, f := range frags {
		if e := f.StartMs + f.DurationMs; e > end {
			end = e
		}
	}
	return end
}
