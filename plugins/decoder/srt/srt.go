package srt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"subsync/pkg/contract"
)

// Options 为 SRT 解码器的可选配置。
type Options struct {
	// MaxCueBytes: 单条字幕文本最大字节数。0 表示不限制。
	MaxCueBytes int `json:"max_cue_bytes"`
	// AllowExts: 允许处理的扩展名（大小写不敏感，含点）。
	// nil 时默认 [".srt"]；显式空切片表示不限制。
	AllowExts []string `json:"allow_exts"`
}

// Decoder 将 SRT 字幕解码为 RawFragment 序列。
type Decoder struct {
	maxBytes int
	allow    map[string]struct{}
}

func New(opts *Options) *Decoder {
	mb := 0
	if opts != nil && opts.MaxCueBytes > 0 {
		mb = opts.MaxCueBytes
	}
	var allow map[string]struct{}
	if opts == nil || opts.AllowExts == nil {
		allow = map[string]struct{}{".srt": {}}
	} else if len(opts.AllowExts) > 0 {
		allow = make(map[string]struct{}, len(opts.AllowExts))
		for _, e := range opts.AllowExts {
			if e == "" {
				continue
			}
			allow[strings.ToLower(e)] = struct{}{}
		}
	}
	return &Decoder{maxBytes: mb, allow: allow}
}

var timeLineRe = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})`)

// Decode 逐块读取：序号行、时间轴行、若干文本行，空行结束。
// 文本行以空格拼接后归一；空文本块跳过。输出按 StartMs 稳定排序。
func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.RawFragment, error) {
	if d.allow != nil {
		ext := strings.ToLower(path.Ext(string(fileID)))
		if _, ok := d.allow[ext]; !ok {
			return nil, nil
		}
	}
	br := bufio.NewReader(r)
	var out []contract.RawFragment
	first := true
	for {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		seqLine, eof, err := readTrimmedLine(br)
		if err != nil {
			return nil, err
		}
		if eof {
			break
		}
		if first {
			seqLine = strings.TrimPrefix(seqLine, "\uFEFF")
			first = false
		}
		seqLine = strings.TrimSpace(seqLine)
		if seqLine == "" {
			continue
		}
		if _, err := strconv.Atoi(seqLine); err != nil {
			return nil, fmt.Errorf("srt format error: invalid sequence line %q: %w", seqLine, contract.ErrInvalidInput)
		}
		timeLine, _, err := readTrimmedLine(br)
		if err != nil {
			return nil, err
		}
		start, end, err := parseTimeLine(timeLine)
		if err != nil {
			return nil, err
		}

		var texts []string
		size := 0
		for {
			line, _, err := readTrimmedLine(br)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(line) == "" {
				break
			}
			size += len(line)
			if d.maxBytes > 0 && size+len(texts) > d.maxBytes {
				return nil, fmt.Errorf("cue too large: %d > %d: %w", size+len(texts), d.maxBytes, contract.ErrInvalidInput)
			}
			texts = append(texts, line)
		}
		text := strings.Join(texts, " ")
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("decode error: invalid UTF-8 in cue %s: %w", seqLine, contract.ErrInvalidInput)
		}
		text = contract.NormalizeText(stripTags(text))
		if text == "" {
			continue
		}
		out = append(out, contract.RawFragment{Text: text, StartMs: start, DurationMs: end - start})
	}
	sortByStart(out)
	return out, nil
}

var _ contract.Decoder = (*Decoder)(nil)

// parseTimeLine 解析 "HH:MM:SS,mmm --> HH:MM:SS,mmm"；结束早于开始时时长记 0。
func parseTimeLine(s string) (start, end int64, err error) {
	m := timeLineRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("srt format error: invalid time line %q: %w", s, contract.ErrInvalidInput)
	}
	start = clockMs(m[1], m[2], m[3], m[4])
	end = clockMs(m[5], m[6], m[7], m[8])
	if end < start {
		end = start
	}
	return start, end, nil
}

func clockMs(h, m, s, ms string) int64 {
	hh, _ := strconv.ParseInt(h, 10, 64)
	mm, _ := strconv.ParseInt(m, 10, 64)
	ss, _ := strconv.ParseInt(s, 10, 64)
	fr, _ := strconv.ParseInt(ms, 10, 64)
	return ((hh*60+mm)*60+ss)*1000 + fr
}

var tagRe = regexp.MustCompile(`</?[a-zA-Z][^>]*>|\{\\[^}]*\}`)

// stripTags 去除 <i>/<font> 与 {\an8} 一类样式标记。
func stripTags(s string) string {
	if !strings.ContainsAny(s, "<{") {
		return s
	}
	return tagRe.ReplaceAllString(s, "")
}

// sortByStart 插入排序：SRT 通常已有序，近乎 O(n)。
func sortByStart(fs []contract.RawFragment) {
	for i := 1; i < len(fs); i++ {
		for j := i; j > 0 && fs[j].StartMs < fs[j-1].StartMs; j-- {
			fs[j], fs[j-1] = fs[j-1], fs[j]
		}
	}
}

// readTrimmedLine 读取一行并去除 \n / \r\n；返回是否已到 EOF 且无内容。
func readTrimmedLine(br *bufio.Reader) (line string, eof bool, err error) {
	s, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			eof = true
		} else {
			return "", false, err
		}
	}
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, eof && s == "", nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
