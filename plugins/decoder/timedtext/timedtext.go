package timedtext

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"math"
	"strconv"
	"strings"

	"subsync/pkg/contract"
)

// Options: 时间文本解码配置。
type Options struct {
	// MaxBytes: 单个载荷上限（字节），0 表示默认 32MiB。
	MaxBytes int64 `json:"max_bytes"`
}

const defaultMaxBytes = 32 << 20

// Decoder 解码视频平台的时间文本载荷：
// JSON3（events[].tStartMs/dDurationMs/segs[].utf8）优先；
// 解析失败时回退到 XML（<text start dur> 秒制，或 <p t d> 毫秒制）。
type Decoder struct {
	maxBytes int64
}

func New(opts *Options) *Decoder {
	d := &Decoder{maxBytes: defaultMaxBytes}
	if opts != nil && opts.MaxBytes > 0 {
		d.maxBytes = opts.MaxBytes
	}
	return d
}

type json3 struct {
	Events []struct {
		TStartMs    int64 `json:"tStartMs"`
		DDurationMs int64 `json:"dDurationMs"`
		Segs        []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.RawFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read timedtext %s: %w", fileID, err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("timedtext %s exceeds %d bytes: %w", fileID, d.maxBytes, contract.ErrInvalidInput)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var doc json3
		if err := json.Unmarshal(trimmed, &doc); err == nil {
			return fromJSON3(doc), nil
		}
	}
	frags, err := fromXML(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode timedtext %s: %w", fileID, err)
	}
	return frags, nil
}

var _ contract.Decoder = (*Decoder)(nil)

func fromJSON3(doc json3) []contract.RawFragment {
	out := make([]contract.RawFragment, 0, len(doc.Events))
	for _, e := range doc.Events {
		if len(e.Segs) == 0 {
			continue
		}
		var b strings.Builder
		for _, s := range e.Segs {
			b.WriteString(s.UTF8)
		}
		text := contract.NormalizeText(b.String())
		if text == "" {
			continue
		}
		out = append(out, contract.RawFragment{Text: text, StartMs: e.TStartMs, DurationMs: max(e.DDurationMs, 0)})
	}
	return out
}

// fromXML 流式扫描 <text> 与 <p> 元素；其它元素忽略。
func fromXML(ctx context.Context, data []byte) ([]contract.RawFragment, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	var out []contract.RawFragment
	seen := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml: %v: %w", err, contract.ErrInvalidInput)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var start, dur int64
		switch se.Name.Local {
		case "text":
			start = secondsAttr(se, "start")
			dur = secondsAttr(se, "dur")
		case "p":
			start = intAttr(se, "t")
			dur = intAttr(se, "d")
		default:
			continue
		}
		seen = true
		var body struct {
			Inner string `xml:",innerxml"`
		}
		if err := dec.DecodeElement(&body, &se); err != nil {
			return nil, fmt.Errorf("xml element: %v: %w", err, contract.ErrInvalidInput)
		}
		// innerxml 保留原始实体；旧格式常见二次转义（&amp;#39;）
		text := contract.NormalizeText(html.UnescapeString(stripMarkup(body.Inner)))
		if text == "" {
			continue
		}
		out = append(out, contract.RawFragment{Text: text, StartMs: start, DurationMs: max(dur, 0)})
	}
	if !seen {
		return nil, fmt.Errorf("no timed text elements: %w", contract.ErrInvalidInput)
	}
	return out, nil
}

// stripMarkup 去除内联标签（如 srv3 的 <s>），保留文本与实体。
func stripMarkup(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func secondsAttr(se xml.StartElement, name string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(attr(se, name)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f * 1000))
}

func intAttr(se xml.StartElement, name string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(attr(se, name)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
