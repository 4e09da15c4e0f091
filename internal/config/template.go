package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 使用 mock 翻译器与合理限额（离线调试友好），Writer 输出到 ./out。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.Inputs = []string{"-"}
	cfg.TargetLang = "zh-CN"
	cfg.MaxTokens = 4096
	cfg.Translator = "mock"
	cfg.Provider = map[string]Provider{
		"mock": {
			Client:  "mock",
			Options: Table{"prefix": "", "mode": "sentences"},
			Limits:  Limits{RPM: 600, CPM: 200000, MaxCharsPerReq: 4000},
		},
		"google": {
			Client:  "google",
			Options: Table{"base_url": "", "timeout_seconds": 30, "retry_after_ms": 2000},
			Limits:  Limits{RPM: 60, CPM: 60000, MaxCharsPerReq: 4000},
		},
		"llm": {
			Client: "llm",
			Options: Table{
				"base_url":         "https://api.openai.com/v1",
				"model":            "",
				"api_key_env":      "OPENAI_API_KEY",
				"timeout_seconds":  60,
				"max_retries":      2,
				"retry_initial_ms": 500,
			},
			Limits: Limits{RPM: 60, CPM: 100000, MaxCharsPerReq: 3000},
		},
		"gemini": {
			Client: "gemini",
			Options: Table{
				"model":            "gemini-2.5-flash",
				"api_key_env":      "GOOGLE_API_KEY",
				"timeout_seconds":  60,
				"max_retries":      2,
				"retry_initial_ms": 500,
			},
			Limits: Limits{RPM: 30, CPM: 100000, MaxCharsPerReq: 3000},
		},
	}
	cfg.Options.Reader = Table{"buf_size": 65536, "exclude_dir_names": []any{".git", "node_modules"}}
	cfg.Options.Merger = Table{"pause_threshold_ms": 300, "max_sentence_chars": 80, "max_fragments": 12}
	cfg.Options.Chunker = Table{"max_chars": 4000, "min_pause_ms": 1000}
	cfg.Options.Assembler = Table{"mode": "bilingual", "translation_first": false}
	cfg.Options.Writer = Table{"output_dir": "out", "atomic": true, "flat": true}
	cfg.Options.Cache = Table{"path": "cache/translations.db", "ttl_hours": 0}
	cfg.Options.Renderer = Table{"color": "auto"}
	return cfg
}

// Marshal 按格式序列化配置。
func Marshal(cfg Config, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatTOML:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, invalid("format %q", format)
}

// EnvTemplate 生成 .env 模板：列出全部支持的 SUBSYNC_ 键（值留空即不覆盖）。
func EnvTemplate(cfg Config) string {
	var b strings.Builder
	b.WriteString("# subsync 环境变量覆盖（优先级高于配置文件，低于命令行）\n")
	for _, k := range []string{"INPUTS", "TARGET_LANG", "SOURCE_LANG", "CONCURRENCY", "STRATEGY",
		"MAX_TOKENS", "TRANSLATOR", "LOG_LEVEL", "LOG_TRACE", "SYNC_OFFSET_MS", "SYNC_DISPLAY_MODE", "SYNC_TICK_HZ"} {
		fmt.Fprintf(&b, "%s%s=\n", EnvPrefix, k)
	}
	comps := make([]string, 0, 10)
	for name := range cfg.Components.byName() {
		comps = append(comps, name)
	}
	sort.Strings(comps)
	for _, name := range comps {
		fmt.Fprintf(&b, "%sCOMPONENTS_%s=\n", EnvPrefix, name)
	}
	names := make([]string, 0, len(cfg.Provider))
	for name := range cfg.Provider {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, f := range []string{"CLIENT", "LIMITS_RPM", "LIMITS_CPM", "LIMITS_MAX_CHARS_PER_REQ", "OPTIONS_JSON"} {
			fmt.Fprintf(&b, "%sPROVIDER__%s__%s=\n", EnvPrefix, name, f)
		}
	}
	return b.String()
}
