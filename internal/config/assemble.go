package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"subsync/internal/diag"
	"subsync/internal/pipeline"
	"subsync/internal/prompt"
	"subsync/internal/rate"
	"subsync/internal/syncengine"
	"subsync/pkg/contract"
	"subsync/pkg/registry"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("config: "+format+": %w", append(args, contract.ErrInvalidInput)...)
}

// Validate 对最小必要边界做静态校验。inputs 由调用方在校验前补齐。
func Validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return invalid("inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return invalid("input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return invalid("'-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return invalid("concurrency must be >= 1")
	}
	if cfg.MaxTokens < 0 {
		return invalid("max_tokens must be >= 0")
	}
	if _, err := pipeline.ParseStrategy(cfg.Strategy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := contract.ParseDisplayMode(cfg.Sync.DisplayMode); err != nil {
		return fmt.Errorf("config: sync: %w", err)
	}
	if _, err := syncengine.Interval(cfg.Sync.TickHz); err != nil {
		return fmt.Errorf("config: sync: %w", err)
	}
	if cfg.Translator != "" {
		prov, ok := cfg.Provider[cfg.Translator]
		if !ok {
			return invalid("provider %q not found", cfg.Translator)
		}
		if prov.Client == "" {
			return invalid("provider %q missing client", cfg.Translator)
		}
		if registry.Translator[prov.Client] == nil {
			return invalid("translator client %q not registered", prov.Client)
		}
		if prov.Limits.RPM < 0 || prov.Limits.CPM < 0 || prov.Limits.MaxCharsPerReq < 0 {
			return invalid("provider %q limits must be >= 0", cfg.Translator)
		}
		if strings.TrimSpace(cfg.TargetLang) == "" {
			return invalid("target_lang required when translator is set")
		}
	}
	c := withDefaults(cfg.Components)
	checks := []struct {
		kind, name string
		ok         bool
	}{
		{"reader", c.Reader, registry.Reader[c.Reader] != nil},
		{"decoder", c.Decoder, registry.Decoder[c.Decoder] != nil},
		{"merger", c.Merger, registry.Merger[c.Merger] != nil},
		{"chunker", c.Chunker, registry.Chunker[c.Chunker] != nil},
		{"aligner", c.Aligner, registry.Aligner[c.Aligner] != nil},
		{"assembler", c.Assembler, registry.Assembler[c.Assembler] != nil},
		{"writer", c.Writer, registry.Writer[c.Writer] != nil},
		{"renderer", c.Renderer, registry.Renderer[c.Renderer] != nil},
		{"sidecar", c.Sidecar, c.Sidecar == "" || registry.Assembler[c.Sidecar] != nil},
		{"cache", c.Cache, c.Cache == "" || registry.Cache[c.Cache] != nil},
	}
	for _, ch := range checks {
		if !ch.ok {
			return invalid("%s %q not registered", ch.kind, ch.name)
		}
	}
	return nil
}

// withDefaults 为空的必需组件名补默认值；Sidecar/Cache 为空即关闭。
func withDefaults(c Components) Components {
	d := Defaults().Components
	dn, cn := d.byName(), c.byName()
	for name, p := range cn {
		if *p == "" && name != "SIDECAR" && name != "CACHE" {
			*p = *dn[name]
		}
	}
	return c
}

// Assembly 为装配结果。Close 释放缓存等资源。
type Assembly struct {
	Components pipeline.Components
	Settings   pipeline.Settings
	Cache      contract.Cache
}

// Close 关闭缓存（若有）。
func (a *Assembly) Close() error {
	if a == nil || a.Cache == nil {
		return nil
	}
	return a.Cache.Close()
}

// Assemble 构造 Components、Settings、缓存与限流 Gate+Key。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 JSON。
func Assemble(cfg Config, logger *diag.Logger) (_ *Assembly, err error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	c := withDefaults(cfg.Components)
	o := cfg.Options
	a := &Assembly{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	comp := &a.Components
	if comp.Reader, err = build(registry.Reader[c.Reader], o.Reader); err != nil {
		return nil, fmt.Errorf("reader: %w", err)
	}
	if comp.Decoder, err = build(registry.Decoder[c.Decoder], o.Decoder); err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}
	if comp.Merger, err = build(registry.Merger[c.Merger], o.Merger); err != nil {
		return nil, fmt.Errorf("merger: %w", err)
	}
	if comp.Chunker, err = build(registry.Chunker[c.Chunker], o.Chunker); err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	if comp.Aligner, err = build(registry.Aligner[c.Aligner], o.Aligner); err != nil {
		return nil, fmt.Errorf("aligner: %w", err)
	}
	if comp.Assembler, err = build(registry.Assembler[c.Assembler], o.Assembler); err != nil {
		return nil, fmt.Errorf("assembler: %w", err)
	}
	if c.Sidecar != "" {
		if comp.Sidecar, err = build(registry.Assembler[c.Sidecar], o.Sidecar); err != nil {
			return nil, fmt.Errorf("sidecar: %w", err)
		}
	}
	if comp.Writer, err = build(registry.Writer[c.Writer], o.Writer); err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	if c.Cache != "" {
		if a.Cache, err = build(registry.Cache[c.Cache], o.Cache); err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
	}

	strategy, _ := pipeline.ParseStrategy(cfg.Strategy)
	a.Settings = pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		TargetLang:  strings.TrimSpace(cfg.TargetLang),
		SourceLang:  strings.TrimSpace(cfg.SourceLang),
		Concurrency: cfg.Concurrency,
		Strategy:    strategy,
	}
	if cfg.Translator == "" {
		return a, nil
	}

	// 翻译器 + 限流 Gate（分组键从 options 中派生凭据）
	prov := cfg.Provider[cfg.Translator]
	raw, err := rawOptions(prov.Options)
	if err != nil {
		return nil, err
	}
	tr, err := registry.Translator[prov.Client](raw)
	if err != nil {
		return nil, fmt.Errorf("translator %s: %w", cfg.Translator, err)
	}
	key, derr := rate.DeriveKeyFromProviderOptions(prov.Client, raw)
	if derr != nil {
		key = rate.LimitKey(cfg.Translator)
	}
	a.Settings.Gate = rate.NewGate(map[rate.LimitKey]rate.Limits{
		key: {RPM: prov.Limits.RPM, CPM: prov.Limits.CPM, MaxCharsPerReq: prov.Limits.MaxCharsPerReq},
	}, nil)
	a.Settings.GateKey = key
	a.Settings.TranslatorName = cfg.Translator

	if a.Settings.MaxChars, err = chunkBudget(cfg, comp.Chunker, tr, prov.Limits); err != nil {
		return nil, err
	}
	comp.Translator = pipeline.NewCachedTranslator(tr, a.Cache, logger)
	return a, nil
}

// chunkBudget 取分块器上限，再按上下文 token 预算与单请求字符上限收紧。
func chunkBudget(cfg Config, ch contract.Chunker, tr contract.Translator, lim Limits) (int, error) {
	mc := 0
	if m, ok := ch.(interface{ MaxChars() int }); ok {
		mc = m.MaxChars()
	}
	if pbs, ok := tr.(interface{ PromptBuilder() contract.PromptBuilder }); ok && cfg.MaxTokens > 0 {
		n, err := prompt.ChunkCharBudget(pbs.PromptBuilder(), 0, cfg.MaxTokens, mc)
		if err != nil {
			return 0, fmt.Errorf("config: max_tokens %d leaves no room for text: %w", cfg.MaxTokens, err)
		}
		mc = n
	}
	if lim.MaxCharsPerReq > 0 && (mc <= 0 || mc > lim.MaxCharsPerReq) {
		mc = lim.MaxCharsPerReq
	}
	return mc, nil
}

func build[T any](f func(json.RawMessage) (T, error), t Table) (T, error) {
	var zero T
	raw, err := rawOptions(t)
	if err != nil {
		return zero, err
	}
	return f(raw)
}

// NewRenderer 按配置构造渲染器（play 命令使用）。
func NewRenderer(cfg Config, w io.Writer) (contract.Renderer, error) {
	c := withDefaults(cfg.Components)
	f := registry.Renderer[c.Renderer]
	if f == nil {
		return nil, invalid("renderer %q not registered", c.Renderer)
	}
	raw, err := rawOptions(cfg.Options.Renderer)
	if err != nil {
		return nil, err
	}
	return f(w, raw)
}

// IsConfigError 判断错误是否来自配置/装配（用于退出码）。
func IsConfigError(err error) bool {
	return errors.Is(err, contract.ErrInvalidInput)
}
