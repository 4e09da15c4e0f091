package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"subsync/pkg/contract"
	"subsync/plugins/aligner/fuzzy"
	asmjsonl "subsync/plugins/assembler/jsonl"
	asmsrt "subsync/plugins/assembler/srt"
	"subsync/plugins/cache/memory"
	credis "subsync/plugins/cache/redis"
	csqlite "subsync/plugins/cache/sqlite"
	"subsync/plugins/chunker/pause"
	"subsync/plugins/decoder/auto"
	dsrt "subsync/plugins/decoder/srt"
	"subsync/plugins/decoder/timedtext"
	"subsync/plugins/merger/heuristic"
	rfs "subsync/plugins/reader/filesystem"
	"subsync/plugins/renderer/terminal"
	"subsync/plugins/translator/flaky"
	"subsync/plugins/translator/gemini"
	"subsync/plugins/translator/google"
	"subsync/plugins/translator/llm"
	"subsync/plugins/translator/mock"
	wfs "subsync/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("options: %v: %w", err, contract.ErrInvalidInput)
	}
	return nil
}

// 工厂签名：接收原样 JSON Options。
type (
	NewReader     func(raw json.RawMessage) (contract.Reader, error)
	NewDecoder    func(raw json.RawMessage) (contract.Decoder, error)
	NewMerger     func(raw json.RawMessage) (contract.Merger, error)
	NewChunker    func(raw json.RawMessage) (contract.Chunker, error)
	NewAligner    func(raw json.RawMessage) (contract.Aligner, error)
	NewTranslator func(raw json.RawMessage) (contract.Translator, error)
	NewCache      func(raw json.RawMessage) (contract.Cache, error)
	NewAssembler  func(raw json.RawMessage) (contract.Assembler, error)
	NewWriter     func(raw json.RawMessage) (contract.Writer, error)
	NewRenderer   func(w io.Writer, raw json.RawMessage) (contract.Renderer, error)
)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件/目录/STDIN
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// auto: 按扩展名在 srt 与 timedtext 间选择
	"auto": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return auto.New(), nil
	},
	"srt": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dsrt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dsrt.New(&opts), nil
	},
	// timedtext: JSON3/SRV3/XML 定时文本
	"timedtext": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts timedtext.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return timedtext.New(&opts), nil
	},
}

// Merger 工厂注册表。
var Merger = map[string]NewMerger{
	"heuristic": func(raw json.RawMessage) (contract.Merger, error) {
		var opts heuristic.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return heuristic.New(&opts)
	},
}

// Chunker 工厂注册表。
var Chunker = map[string]NewChunker{
	"pause": func(raw json.RawMessage) (contract.Chunker, error) {
		var opts pause.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return pause.New(&opts)
	},
}

// Aligner 工厂注册表。
var Aligner = map[string]NewAligner{
	"fuzzy": func(raw json.RawMessage) (contract.Aligner, error) {
		var opts fuzzy.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return fuzzy.New(&opts), nil
	},
}

// Translator 工厂注册表（provider.client）。选项解析由各实现负责。
var Translator = map[string]NewTranslator{
	"mock":   func(raw json.RawMessage) (contract.Translator, error) { return mock.New(raw) },
	"flaky":  func(raw json.RawMessage) (contract.Translator, error) { return flaky.New(raw) },
	"gemini": func(raw json.RawMessage) (contract.Translator, error) { return gemini.New(raw) },
	"google": func(raw json.RawMessage) (contract.Translator, error) { return google.New(raw) },
	"llm":    func(raw json.RawMessage) (contract.Translator, error) { return llm.New(raw) },
}

// Cache 工厂注册表。
var Cache = map[string]NewCache{
	"memory": func(raw json.RawMessage) (contract.Cache, error) {
		var opts memory.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return memory.New(&opts), nil
	},
	"sqlite": func(raw json.RawMessage) (contract.Cache, error) {
		var opts csqlite.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return csqlite.Open(&opts)
	},
	"redis": func(raw json.RawMessage) (contract.Cache, error) {
		var opts credis.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return credis.New(&opts)
	},
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	"srt": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts asmsrt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return asmsrt.New(&opts)
	},
	// jsonl: 每句一行的旁路文件
	"jsonl": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return asmjsonl.New(), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置，flock 单写者）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Renderer 工厂注册表。
var Renderer = map[string]NewRenderer{
	"terminal": func(w io.Writer, raw json.RawMessage) (contract.Renderer, error) {
		var opts terminal.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return terminal.New(w, &opts)
	},
}
