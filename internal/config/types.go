package config

// Config: 运行期只读配置（一次解析，运行期不变）。
// TOML/YAML 均使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs      []string `toml:"inputs" yaml:"inputs"`
	TargetLang  string   `toml:"target_lang" yaml:"target_lang"`
	SourceLang  string   `toml:"source_lang" yaml:"source_lang"`
	Concurrency int      `toml:"concurrency" yaml:"concurrency"`
	// Strategy: auto|aligned|heuristic。
	Strategy string `toml:"strategy" yaml:"strategy"`
	// MaxTokens: 翻译上下文 token 上限，>0 时折算为分块字符上限。
	MaxTokens int     `toml:"max_tokens" yaml:"max_tokens"`
	Logging   Logging `toml:"logging" yaml:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `toml:"components" yaml:"components"`

	// Translator: provider 名；为空表示不翻译（仅启发式分句）。
	Translator string              `toml:"translator" yaml:"translator"`
	Provider   map[string]Provider `toml:"provider" yaml:"provider"`

	// 各组件 Options 子树，转为 JSON 后传入工厂。
	Options Options `toml:"options" yaml:"options"`

	Sync Sync `toml:"sync" yaml:"sync"`
}

// Logging: 日志等级；Trace 打开时 span 写入 logs/trace.jsonl。
type Logging struct {
	Level string `toml:"level" yaml:"level"`
	Trace bool   `toml:"trace" yaml:"trace"`
}

// Components: 组件名选择（注册表中的实现名）。Cache 为空表示不缓存。
type Components struct {
	Reader    string `toml:"reader" yaml:"reader"`
	Decoder   string `toml:"decoder" yaml:"decoder"`
	Merger    string `toml:"merger" yaml:"merger"`
	Chunker   string `toml:"chunker" yaml:"chunker"`
	Aligner   string `toml:"aligner" yaml:"aligner"`
	Assembler string `toml:"assembler" yaml:"assembler"`
	Sidecar   string `toml:"sidecar" yaml:"sidecar"`
	Writer    string `toml:"writer" yaml:"writer"`
	Cache     string `toml:"cache" yaml:"cache"`
	Renderer  string `toml:"renderer" yaml:"renderer"`
}

// Table 为一段任意结构的选项表。
type Table = map[string]any

// Options: 各组件的选项表。
type Options struct {
	Reader    Table `toml:"reader" yaml:"reader"`
	Decoder   Table `toml:"decoder" yaml:"decoder"`
	Merger    Table `toml:"merger" yaml:"merger"`
	Chunker   Table `toml:"chunker" yaml:"chunker"`
	Aligner   Table `toml:"aligner" yaml:"aligner"`
	Assembler Table `toml:"assembler" yaml:"assembler"`
	Sidecar   Table `toml:"sidecar" yaml:"sidecar"`
	Writer    Table `toml:"writer" yaml:"writer"`
	Cache     Table `toml:"cache" yaml:"cache"`
	Renderer  Table `toml:"renderer" yaml:"renderer"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string `toml:"client" yaml:"client"`
	Options Table  `toml:"options" yaml:"options"`
	Limits  Limits `toml:"limits" yaml:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM            int `toml:"rpm" yaml:"rpm"`
	CPM            int `toml:"cpm" yaml:"cpm"`
	MaxCharsPerReq int `toml:"max_chars_per_req" yaml:"max_chars_per_req"`
}

// Sync: play 命令的同步参数。
type Sync struct {
	OffsetMs    int64  `toml:"offset_ms" yaml:"offset_ms"`
	DisplayMode string `toml:"display_mode" yaml:"display_mode"`
	TickHz      int    `toml:"tick_hz" yaml:"tick_hz"`
}
