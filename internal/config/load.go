package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"subsync/pkg/contract"
)

// EnvPrefix 为环境变量覆盖前缀。
const EnvPrefix = "SUBSYNC_"

// Format 为配置文件格式。
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf 按扩展名判定格式；.yml/.yaml 为 YAML，其余按 TOML 处理。
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	}
	return FormatTOML
}

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：translator 不设默认，未配置时只做启发式分句。
func Defaults() Config {
	return Config{
		Concurrency: 2,
		Strategy:    "auto",
		Logging:     Logging{Level: "info"},
		Components: Components{
			Reader:    "fs",
			Decoder:   "auto",
			Merger:    "heuristic",
			Chunker:   "pause",
			Aligner:   "fuzzy",
			Assembler: "srt",
			Sidecar:   "jsonl",
			Writer:    "fs",
			Renderer:  "terminal",
		},
		Options: Options{
			Writer: Table{"output_dir": "out"},
		},
		Sync: Sync{DisplayMode: "bilingual", TickHz: 60},
	}
}

// LoadFile 从文件解析 Config（严格拒绝未知字段）。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Load(FormatOf(path), raw)
}

// Load 按格式解析原始字节。
func Load(format Format, raw []byte) (Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config yaml: %v: %w", err, contract.ErrInvalidInput)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var sm *toml.StrictMissingError
			if errors.As(err, &sm) {
				return Config{}, fmt.Errorf("config toml: %s: %w", sm.String(), contract.ErrInvalidInput)
			}
			return Config{}, fmt.Errorf("config toml: %v: %w", err, contract.ErrInvalidInput)
		}
	default:
		return Config{}, fmt.Errorf("config: format %q: %w", format, contract.ErrInvalidInput)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量/字符串/选项表为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	out.Inputs = cloneStrings(base.Inputs)
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	setStr(&out.TargetLang, over.TargetLang)
	setStr(&out.SourceLang, over.SourceLang)
	setStr(&out.Strategy, over.Strategy)
	setStr(&out.Translator, over.Translator)
	setStr(&out.Logging.Level, over.Logging.Level)
	if over.Logging.Trace {
		out.Logging.Trace = true
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.MaxTokens != 0 {
		out.MaxTokens = over.MaxTokens
	}

	// 组件名（空不覆盖）
	of := over.Components.byName()
	for name, p := range out.Components.byName() {
		setStr(p, *of[name])
	}

	// Options（整表替换对应键）
	oo := over.Options.byName()
	for name, p := range out.Options.byName() {
		if t := *oo[name]; len(t) > 0 {
			*p = maps.Clone(t)
		}
	}

	// Provider（完整替换对应键）
	if len(over.Provider) > 0 {
		prov := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		maps.Copy(prov, out.Provider)
		maps.Copy(prov, over.Provider)
		out.Provider = prov
	}

	if over.Sync.OffsetMs != 0 {
		out.Sync.OffsetMs = over.Sync.OffsetMs
	}
	setStr(&out.Sync.DisplayMode, over.Sync.DisplayMode)
	if over.Sync.TickHz != 0 {
		out.Sync.TickHz = over.Sync.TickHz
	}
	return out
}

// byName 以 ENV 后缀为键列出组件名字段。
func (c *Components) byName() map[string]*string {
	return map[string]*string{
		"READER": &c.Reader, "DECODER": &c.Decoder, "MERGER": &c.Merger,
		"CHUNKER": &c.Chunker, "ALIGNER": &c.Aligner, "ASSEMBLER": &c.Assembler,
		"SIDECAR": &c.Sidecar, "WRITER": &c.Writer, "CACHE": &c.Cache, "RENDERER": &c.Renderer,
	}
}

func (o *Options) byName() map[string]*Table {
	return map[string]*Table{
		"READER": &o.Reader, "DECODER": &o.Decoder, "MERGER": &o.Merger,
		"CHUNKER": &o.Chunker, "ALIGNER": &o.Aligner, "ASSEMBLER": &o.Assembler,
		"SIDECAR": &o.Sidecar, "WRITER": &o.Writer, "CACHE": &o.Cache, "RENDERER": &o.Renderer,
	}
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 SUBSYNC_；集合之外的键忽略。
// 支持：INPUTS, TARGET_LANG, SOURCE_LANG, CONCURRENCY, STRATEGY, MAX_TOKENS,
// TRANSLATOR, LOG_LEVEL, COMPONENTS_*, OPTIONS_<COMPONENT>_JSON,
// SYNC_{OFFSET_MS,DISPLAY_MODE,TICK_HZ}
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,CPM,MAX_CHARS_PER_REQ} / PROVIDER__<name>__OPTIONS_JSON。
// 数值或 JSON 非法时返回 ErrInvalidInput。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	comps := over.Components.byName()
	opts := over.Options.byName()
	prov := map[string]Provider{}
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		val = strings.TrimSpace(val)
		if val == "" {
			// 空值视为未设置，避免清空文件中的配置
			continue
		}
		var err error
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "TARGET_LANG":
			over.TargetLang = val
		case "SOURCE_LANG":
			over.SourceLang = val
		case "CONCURRENCY":
			over.Concurrency, err = atoi(nk, val)
		case "STRATEGY":
			over.Strategy = val
		case "MAX_TOKENS":
			over.MaxTokens, err = atoi(nk, val)
		case "TRANSLATOR":
			over.Translator = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_TRACE":
			over.Logging.Trace, err = strconv.ParseBool(val)
		case "SYNC_OFFSET_MS":
			over.Sync.OffsetMs, err = strconv.ParseInt(val, 10, 64)
		case "SYNC_DISPLAY_MODE":
			over.Sync.DisplayMode = val
		case "SYNC_TICK_HZ":
			over.Sync.TickHz, err = atoi(nk, val)
		default:
			switch {
			case strings.HasPrefix(nk, "COMPONENTS_"):
				if p := comps[strings.TrimPrefix(nk, "COMPONENTS_")]; p != nil {
					*p = val
				}
			case strings.HasPrefix(nk, "OPTIONS_") && strings.HasSuffix(nk, "_JSON"):
				name := strings.TrimSuffix(strings.TrimPrefix(nk, "OPTIONS_"), "_JSON")
				if p := opts[name]; p != nil {
					*p, err = parseTable(nk, val)
				}
			case strings.HasPrefix(nk, "PROVIDER__"):
				err = providerEnv(prov, strings.TrimPrefix(nk, "PROVIDER__"), val)
			}
		}
		if err != nil {
			return Config{}, fmt.Errorf("env %s: %v: %w", key, err, contract.ErrInvalidInput)
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

// providerEnv 处理 <name>__<FIELD>。
func providerEnv(prov map[string]Provider, rest, val string) error {
	name, field, ok := strings.Cut(rest, "__")
	if !ok || strings.TrimSpace(name) == "" {
		return nil
	}
	p := prov[name]
	var err error
	switch field {
	case "CLIENT":
		p.Client = val
	case "LIMITS_RPM":
		p.Limits.RPM, err = atoi(field, val)
	case "LIMITS_CPM":
		p.Limits.CPM, err = atoi(field, val)
	case "LIMITS_MAX_CHARS_PER_REQ":
		p.Limits.MaxCharsPerReq, err = atoi(field, val)
	case "OPTIONS_JSON":
		p.Options, err = parseTable(field, val)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	prov[name] = p
	return nil
}

func parseTable(field, val string) (Table, error) {
	var t Table
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, fmt.Errorf("%s: %v", field, err)
	}
	return t, nil
}

// rawOptions 将选项表转为工厂所需的 JSON；空表返回 nil（工厂使用默认值）。
func rawOptions(t Table) (json.RawMessage, error) {
	if len(t) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("options: %v: %w", err, contract.ErrInvalidInput)
	}
	return b, nil
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(field, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %q", field, s)
	}
	return n, nil
}
