package segment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"subsync/pkg/contract"
)

// Options 为“逐句切分 + 翻译”PromptBuilder 的最小配置。
// - InlineSystemTemplate / SystemTemplatePath: system 提示模板（二选一，均为空时使用内置默认模板）。
type Options struct {
	InlineSystemTemplate string `json:"inline_system_template"`
	SystemTemplatePath   string `json:"system_template_path"`
	// 术语对照表（可选）：若提供则拼接进 system 提示尾部。
	InlineGlossary string `json:"inline_glossary"`
	GlossaryPath   string `json:"glossary_path"`
}

// Builder: 以块文本构造 ChatPrompt（system + user + json_schema）。
// 模板在构造期解析，运行期不做 I/O。
type Builder struct {
	sysT *template.Template
	glos string
}

// New 创建 PromptBuilder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	src := defaultSystemTemplate
	if o.InlineSystemTemplate != "" {
		src = o.InlineSystemTemplate
	} else if o.SystemTemplatePath != "" {
		b, err := os.ReadFile(o.SystemTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("system template read: %w", err)
		}
		src = string(b)
	}
	tpl, err := template.New("system").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("system template parse: %w", err)
	}
	glos := o.InlineGlossary
	if glos == "" && o.GlossaryPath != "" {
		b, err := os.ReadFile(o.GlossaryPath)
		if err != nil {
			return nil, fmt.Errorf("glossary read: %w", err)
		}
		glos = string(b)
	}
	return &Builder{sysT: tpl, glos: glos}, nil
}

type tplData struct {
	TargetLang string
}

func (b *Builder) system(targetLang string) (string, error) {
	var buf bytes.Buffer
	if err := b.sysT.Execute(&buf, tplData{TargetLang: targetLang}); err != nil {
		return "", err
	}
	if b.glos != "" {
		buf.WriteString("\n\n<glossary>\n")
		buf.WriteString(b.glos)
		if !strings.HasSuffix(b.glos, "\n") {
			buf.WriteByte('\n')
		}
		buf.WriteString("</glossary>")
	}
	return buf.String(), nil
}

// Build 见 contract.PromptBuilder。
func (b *Builder) Build(ctx context.Context, text, targetLang string) (contract.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("prompt: %w: empty chunk", contract.ErrInvalidInput)
	}
	if strings.TrimSpace(targetLang) == "" {
		return nil, fmt.Errorf("prompt: %w: empty target language", contract.ErrInvalidInput)
	}
	sys, err := b.system(targetLang)
	if err != nil {
		return nil, fmt.Errorf("system render: %v: %w", err, contract.ErrInvalidInput)
	}
	var uw bytes.Buffer
	uw.Grow(len(text) + 512)
	uw.WriteString(userHead)
	uw.WriteString(text)
	uw.WriteString(userTail)
	uw.WriteString("target_lang: ")
	uw.WriteString(targetLang)
	uw.WriteByte('\n')
	return contract.ChatPrompt([]contract.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: uw.String()},
		{Role: "json_schema", Content: SegmentsJSONSchema},
	}), nil
}

// EstimateOverheadTokens: 固定部分（system + glossary + user 规则 + schema）。
func (b *Builder) EstimateOverheadTokens(estimate contract.TokenEstimator) int {
	if estimate == nil {
		return 0
	}
	sys, _ := b.system("")
	return estimate(sys) + estimate(userHead+userTail+"target_lang: \n") + estimate(SegmentsJSONSchema)
}

const userHead = "### Transcript\n\n<transcript>\n"

const userTail = "\n</transcript>\n" +
	"\nIMPORTANT OUTPUT RULES:\n" +
	"1) Split the transcript into natural sentences, in order, without skipping text.\n" +
	"2) \"original\" MUST be copied verbatim from the transcript.\n" +
	"3) Return ONLY strict JSON: {\"segments\": [{\"original\": string, \"translated\": string}]}.\n"

const defaultSystemTemplate = `
## Role Definition
You are a subtitle translator. The transcript comes from automatic speech recognition: it has no reliable punctuation and sentence boundaries are missing.
Restore sentence boundaries and translate each sentence into {{.TargetLang}}.

## I/O Protocol (Very Important)
- The user message contains one <transcript> block.
- Each output segment pairs a verbatim span of the transcript with its translation.
- Segments must cover the transcript in order; never merge distant text or reorder.
- If a <glossary> is present, its term mappings MUST take precedence.
`

// SegmentsJSONSchema: {segments:[{original,translated}]}。
const SegmentsJSONSchema = `{"type":"object","additionalProperties":false,"properties":{"segments":{"type":"array","items":{"type":"object","additionalProperties":false,"properties":{"original":{"type":"string"},"translated":{"type":"string"}},"required":["original","translated"]}}},"required":["segments"]}`

var _ contract.PromptBuilder = (*Builder)(nil)
