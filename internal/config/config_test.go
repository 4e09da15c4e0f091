package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsync/internal/diag"
	"subsync/internal/pipeline"
	"subsync/pkg/contract"
)

const basicTOML = `
inputs = ["videos/a.srt"]
target_lang = "zh-CN"
concurrency = 3
strategy = "aligned"
translator = "primary"

[logging]
level = "debug"

[components]
decoder = "srt"

[provider.primary]
client = "mock"
[provider.primary.options]
prefix = "T"
[provider.primary.limits]
rpm = 60
max_chars_per_req = 500

[options.chunker]
max_chars = 800

[options.writer]
output_dir = "out"

[sync]
offset_ms = -250
display_mode = "translation"
`

const basicYAML = `
inputs: [videos/a.srt]
target_lang: ja
translator: g
provider:
  g:
    client: google
    options:
      timeout_seconds: 5
sync:
  tick_hz: 30
`

// 解析完整 TOML
func TestLoadTOML(t *testing.T) {
	cfg, err := Load(FormatTOML, []byte(basicTOML))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Translator != "primary" || cfg.Provider["primary"].Client != "mock" {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	assert.Equal(t, "srt", cfg.Components.Decoder)
	assert.Equal(t, int64(-250), cfg.Sync.OffsetMs)
	assert.EqualValues(t, 800, cfg.Options.Chunker["max_chars"])
	require.NoError(t, Validate(Merge(Defaults(), cfg)))
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(FormatYAML, []byte(basicYAML))
	require.NoError(t, err)
	assert.Equal(t, "google", cfg.Provider["g"].Client)
	assert.Equal(t, 30, cfg.Sync.TickHz)
	require.NoError(t, Validate(Merge(Defaults(), cfg)))

	empty, err := Load(FormatYAML, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Inputs)
}

// 未知字段在解析期失败
func TestLoadUnknown(t *testing.T) {
	_, err := Load(FormatTOML, []byte("unknown = 1\n"))
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = Load(FormatYAML, []byte("unknown: 1\n"))
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = Load(FormatTOML, []byte("[sync]\nbogus = true\n"))
	require.Error(t, err)
	_, err = Load("ini", nil)
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "subsync.yaml")
	require.NoError(t, os.WriteFile(p, []byte(basicYAML), 0o644))
	cfg, err := LoadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "ja", cfg.TargetLang)

	assert.Equal(t, FormatTOML, FormatOf("x.toml"))
	assert.Equal(t, FormatYAML, FormatOf("x.YML"))
	_, err = LoadFile(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}

// ENV 覆盖部分字段
func TestEnvOverlay(t *testing.T) {
	env := []string{
		"SUBSYNC_INPUTS=a, b",
		"SUBSYNC_CONCURRENCY=3",
		"SUBSYNC_TRANSLATOR=mock",
		"SUBSYNC_TARGET_LANG=fr",
		"SUBSYNC_COMPONENTS_CACHE=memory",
		"SUBSYNC_COMPONENTS_UNKNOWN=x",
		"SUBSYNC_OPTIONS_CHUNKER_JSON={\"max_chars\":120}",
		"SUBSYNC_PROVIDER__mock__CLIENT=mock",
		"SUBSYNC_PROVIDER__mock__LIMITS_CPM=1000",
		"SUBSYNC_PROVIDER__mock__OPTIONS_JSON={\"prefix\":\"E\"}",
		"SUBSYNC_SYNC_OFFSET_MS=-100",
		"SUBSYNC_LOG_LEVEL=",
		"OTHER=1",
	}
	over, err := EnvOverlay(env)
	if err != nil {
		t.Fatalf("EnvOverlay 错误: %v", err)
	}
	if over.Translator != "mock" || over.Concurrency != 3 || len(over.Inputs) != 2 {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	assert.Equal(t, []string{"a", "b"}, over.Inputs)
	assert.Equal(t, "memory", over.Components.Cache)
	assert.EqualValues(t, 120, over.Options.Chunker["max_chars"])
	assert.Equal(t, 1000, over.Provider["mock"].Limits.CPM)
	assert.Equal(t, "E", over.Provider["mock"].Options["prefix"])
	assert.Equal(t, int64(-100), over.Sync.OffsetMs)
	assert.Empty(t, over.Logging.Level)

	for _, bad := range []string{"SUBSYNC_CONCURRENCY=abc", "SUBSYNC_OPTIONS_WRITER_JSON={", "SUBSYNC_PROVIDER__x__LIMITS_RPM=z"} {
		if _, err := EnvOverlay([]string{bad}); !errors.Is(err, contract.ErrInvalidInput) {
			t.Fatalf("%s 应报 ErrInvalidInput: %v", bad, err)
		}
	}
}

// 合并优先级：后者覆盖前者，空值不覆盖
func TestMerge(t *testing.T) {
	base := Defaults()
	base.Provider = map[string]Provider{"a": {Client: "mock"}}
	over := Config{
		Concurrency: 5,
		Components:  Components{Merger: "heuristic", Cache: "sqlite"},
		Options:     Options{Writer: Table{"output_dir": "elsewhere"}},
		Provider:    map[string]Provider{"b": {Client: "google"}},
		Sync:        Sync{DisplayMode: "original"},
	}
	out := Merge(base, over)
	assert.Equal(t, 5, out.Concurrency)
	assert.Equal(t, "sqlite", out.Components.Cache)
	assert.Equal(t, "fs", out.Components.Reader)
	assert.Equal(t, "elsewhere", out.Options.Writer["output_dir"])
	assert.Len(t, out.Provider, 2)
	assert.Equal(t, "original", out.Sync.DisplayMode)
	assert.Equal(t, 60, out.Sync.TickHz)
	// base 不被修改
	assert.Equal(t, "out", base.Options.Writer["output_dir"])
	assert.Len(t, base.Provider, 1)
}

func TestValidate(t *testing.T) {
	ok := func() Config {
		c := Defaults()
		c.Inputs = []string{"a.srt"}
		return c
	}
	require.NoError(t, Validate(ok()))

	cases := map[string]func(*Config){
		"no inputs":       func(c *Config) { c.Inputs = nil },
		"blank input":     func(c *Config) { c.Inputs = []string{" "} },
		"dash mixed":      func(c *Config) { c.Inputs = []string{"-", "a"} },
		"concurrency":     func(c *Config) { c.Concurrency = 0 },
		"max tokens":      func(c *Config) { c.MaxTokens = -1 },
		"strategy":        func(c *Config) { c.Strategy = "magic" },
		"display mode":    func(c *Config) { c.Sync.DisplayMode = "upside-down" },
		"tick hz":         func(c *Config) { c.Sync.TickHz = 5000 },
		"no provider":     func(c *Config) { c.Translator = "x"; c.TargetLang = "zh" },
		"no client":       func(c *Config) { c.Translator = "x"; c.TargetLang = "zh"; c.Provider = map[string]Provider{"x": {}} },
		"unknown client":  func(c *Config) { c.Translator = "x"; c.TargetLang = "zh"; c.Provider = map[string]Provider{"x": {Client: "nope"}} },
		"no target":       func(c *Config) { c.Translator = "x"; c.Provider = map[string]Provider{"x": {Client: "mock"}} },
		"negative limit":  func(c *Config) { c.Translator = "x"; c.TargetLang = "zh"; c.Provider = map[string]Provider{"x": {Client: "mock", Limits: Limits{RPM: -1}}} },
		"unknown merger":  func(c *Config) { c.Components.Merger = "nope" },
		"unknown cache":   func(c *Config) { c.Components.Cache = "nope" },
		"unknown sidecar": func(c *Config) { c.Components.Sidecar = "nope" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := ok()
			mutate(&c)
			if err := Validate(c); !errors.Is(err, contract.ErrInvalidInput) {
				t.Fatalf("期望 ErrInvalidInput，实得 %v", err)
			}
		})
	}
}

func TestAssemble(t *testing.T) {
	cfg := Merge(Defaults(), Config{
		Inputs:     []string{"a.srt"},
		TargetLang: "zh-CN",
		Translator: "m",
		Components: Components{Cache: "memory"},
		Provider: map[string]Provider{"m": {
			Client: "mock",
			Limits: Limits{RPM: 100, MaxCharsPerReq: 300},
		}},
		Options: Options{
			Chunker: Table{"max_chars": 1000},
			Writer:  Table{"output_dir": t.TempDir()},
		},
	})
	a, err := Assemble(cfg, diag.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.Cache)
	require.NotNil(t, a.Components.Translator)
	require.NotNil(t, a.Components.Sidecar)
	require.NotNil(t, a.Settings.Gate)
	assert.Equal(t, "zh-CN", a.Settings.TargetLang)
	assert.Equal(t, pipeline.StrategyAuto, a.Settings.Strategy)
	assert.True(t, strings.HasPrefix(string(a.Settings.GateKey), "mock:"))
	// 单请求字符上限收紧分块上限
	assert.Equal(t, 300, a.Settings.MaxChars)
	_, cached := a.Components.Translator.(*pipeline.CachedTranslator)
	assert.True(t, cached)
}

func TestAssembleNoTranslator(t *testing.T) {
	cfg := Defaults()
	cfg.Inputs = []string{"a.srt"}
	cfg.Components.Sidecar = ""
	cfg.Options.Writer = Table{"output_dir": t.TempDir()}
	a, err := Assemble(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, a.Components.Translator)
	assert.Nil(t, a.Components.Sidecar)
	assert.Nil(t, a.Settings.Gate)
	assert.NoError(t, a.Close())
}

func TestAssembleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Inputs = []string{"a.srt"}
	cfg.Options.Writer = nil
	_, err := Assemble(cfg, nil)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	assert.True(t, IsConfigError(err))

	cfg = Defaults()
	cfg.Inputs = []string{"a.srt"}
	cfg.Options.Chunker = Table{"bogus": 1}
	_, err = Assemble(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunker")
}

// token 预算折算为分块字符上限
func TestAssembleTokenBudget(t *testing.T) {
	cfg := Merge(Defaults(), Config{
		Inputs:     []string{"a.srt"},
		TargetLang: "de",
		Translator: "l",
		MaxTokens:  2000,
		Provider: map[string]Provider{"l": {
			Client:  "llm",
			Options: Table{"api_key": "k", "base_url": "http://127.0.0.1:1"},
		}},
	})
	cfg.Options.Writer = Table{"output_dir": t.TempDir()}
	a, err := Assemble(cfg, nil)
	require.NoError(t, err)
	assert.Greater(t, a.Settings.MaxChars, 0)
	assert.Less(t, a.Settings.MaxChars, 2000*4/3+1)

	cfg.MaxTokens = 1
	_, err = Assemble(cfg, nil)
	require.ErrorIs(t, err, contract.ErrBudgetExceeded)
}

func TestTemplateRoundTrip(t *testing.T) {
	tpl := DefaultTemplateConfig()
	for _, f := range []Format{FormatTOML, FormatYAML} {
		raw, err := Marshal(tpl, f)
		require.NoError(t, err, f)
		got, err := Load(f, raw)
		require.NoError(t, err, f)
		assert.Equal(t, tpl.Translator, got.Translator, f)
		assert.Equal(t, tpl.Provider["llm"].Options["api_key_env"], got.Provider["llm"].Options["api_key_env"], f)
		assert.EqualValues(t, 4000, got.Options.Chunker["max_chars"], f)
		require.NoError(t, Validate(got), f)
	}
	env := EnvTemplate(tpl)
	assert.Contains(t, env, "SUBSYNC_TARGET_LANG=\n")
	assert.Contains(t, env, "SUBSYNC_COMPONENTS_CACHE=\n")
	assert.Contains(t, env, "SUBSYNC_PROVIDER__llm__OPTIONS_JSON=\n")
}
