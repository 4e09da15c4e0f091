package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "subsync/internal/config"
	"subsync/internal/diag"
)

// app 为命令共享的运行上下文（全局旗标、日志、追踪）。
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	status     bool
	trace      bool

	corrID  string
	logger  *diag.Logger
	closers []func(context.Context) error
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, status: true, corrID: uuid.NewString(), logger: diag.Nop()}
}

// defaultConfigFiles 为未指定 --config 时依次尝试的文件。
var defaultConfigFiles = []string{"subsync.toml", "subsync.yaml", "subsync.yml"}

// runFlags 为各子命令共享的运行参数覆盖。
type runFlags struct {
	target      string
	source      string
	translator  string
	strategy    string
	concurrency int
	maxTokens   int
	outDir      string
}

func bindRunFlags(cmd *cobra.Command, f *runFlags) {
	fs := cmd.Flags()
	fs.StringVarP(&f.target, "target", "t", "", "目标语言（覆盖配置）")
	fs.StringVar(&f.source, "source", "", "源语言；缺省从文件名推断")
	fs.StringVar(&f.translator, "translator", "", "provider 名称（覆盖配置）")
	fs.StringVar(&f.strategy, "strategy", "", "分句策略 auto|aligned|heuristic")
	fs.IntVar(&f.concurrency, "concurrency", 0, "翻译并发度（覆盖配置）")
	fs.IntVar(&f.maxTokens, "max-tokens", 0, "上下文 token 上限（覆盖配置）")
	fs.StringVarP(&f.outDir, "out", "o", "", "输出目录（fs writer 的 output_dir）")
}

func (f *runFlags) overlay(inputs []string) cfgpkg.Config {
	return cfgpkg.Config{
		Inputs:      inputs,
		TargetLang:  f.target,
		SourceLang:  f.source,
		Translator:  f.translator,
		Strategy:    f.strategy,
		Concurrency: f.concurrency,
		MaxTokens:   f.maxTokens,
	}
}

// prepare 合并配置（默认 < 文件 < ENV < CLI）、校验并初始化日志与追踪。
func (a *app) prepare(f *runFlags, inputs []string, tweak func(*cfgpkg.Config)) (cfgpkg.Config, error) {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）。
	if err := loadDotEnv(".env"); err != nil {
		return cfgpkg.Config{}, fmt.Errorf(".env: %w", err)
	}
	cfg := cfgpkg.Defaults()

	path := strings.TrimSpace(a.configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE"))
	}
	if path == "" {
		for _, p := range defaultConfigFiles {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfgpkg.Config{}, fmt.Errorf("配置解析失败 %s: %w", path, err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	over := cfgpkg.Config{Inputs: inputs}
	if f != nil {
		over = f.overlay(inputs)
		if d := strings.TrimSpace(f.outDir); d != "" {
			w := maps.Clone(cfg.Options.Writer)
			if w == nil {
				w = cfgpkg.Table{}
			}
			w["output_dir"] = d
			cfg.Options.Writer = w
		}
	}
	if a.logLevel != "" {
		over.Logging.Level = a.logLevel
	}
	over.Logging.Trace = a.trace
	cfg = cfgpkg.Merge(cfg, over)
	if tweak != nil {
		tweak(&cfg)
	}

	if err := cfgpkg.Validate(cfg); err != nil {
		return cfg, err
	}
	if err := a.startDiagnostics(cfg); err != nil {
		return cfg, err
	}
	a.logger.DebugStart("config", "effective", "", "", effectiveKV(cfg))
	return cfg, nil
}

// startDiagnostics 按最终配置重建 logger，并按需开启追踪。
func (a *app) startDiagnostics(cfg cfgpkg.Config) error {
	a.logger = diag.NewLogger(a.corrID, cfg.Logging.Level)
	a.closers = append(a.closers, func(context.Context) error { return a.logger.Sync() })
	if !cfg.Logging.Trace {
		return nil
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join("logs", "trace.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	shutdown, err := diag.InitTracing(f, "subsync")
	if err != nil {
		_ = f.Close()
		return err
	}
	a.closers = append(a.closers, shutdown, func(context.Context) error { return f.Close() })
	return nil
}

// close 逆序释放日志与追踪资源。
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		_, _ = fmt.Fprintf(a.stderr, "提示：关闭诊断输出失败：%v\n", err)
	}
}

// effectiveKV 为有效配置摘要（不含 provider options，避免泄露凭据）。
func effectiveKV(cfg cfgpkg.Config) map[string]string {
	kv := map[string]string{
		"inputs_count": fmt.Sprint(len(cfg.Inputs)),
		"target_lang":  cfg.TargetLang,
		"concurrency":  fmt.Sprint(cfg.Concurrency),
		"strategy":     cfg.Strategy,
		"max_tokens":   fmt.Sprint(cfg.MaxTokens),
		"translator":   cfg.Translator,
		"decoder":      cfg.Components.Decoder,
		"cache":        cfg.Components.Cache,
		"writer":       cfg.Components.Writer,
	}
	if p, ok := cfg.Provider[cfg.Translator]; ok {
		kv["provider_client"] = p.Client
		for _, k := range []string{"base_url", "model"} {
			if s, ok := p.Options[k].(string); ok && s != "" {
				kv[k] = s
			}
		}
	}
	return kv
}

func translatorLabel(cfg cfgpkg.Config) string {
	if cfg.Translator == "" {
		return "none"
	}
	return cfg.Translator
}
