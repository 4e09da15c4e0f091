package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"subsync/pkg/contract"
)

// Options: 终端字幕渲染配置。
type Options struct {
	// Color: auto（默认，仅 TTY 着色）/ always / never。
	Color string `json:"color"`
}

// Renderer 将当前字幕写到终端。
// TTY 下原地覆盖上一次输出；非 TTY 逐条追加，Clear 输出空行分隔。
type Renderer struct {
	mu       sync.Mutex
	w        io.Writer
	tty      bool
	color    bool
	lastRows int

	origStyle  text.Colors
	transStyle text.Colors
}

func New(w io.Writer, opts *Options) (*Renderer, error) {
	if w == nil {
		w = os.Stdout
	}
	r := &Renderer{
		w:          w,
		tty:        isTerminal(w),
		origStyle:  text.Colors{text.FgHiWhite},
		transStyle: text.Colors{text.FgHiYellow, text.Bold},
	}
	mode := ""
	if opts != nil {
		mode = strings.ToLower(strings.TrimSpace(opts.Color))
	}
	switch mode {
	case "", "auto":
		r.color = r.tty && os.Getenv("NO_COLOR") == ""
	case "always":
		r.color = true
	case "never":
	default:
		return nil, fmt.Errorf("%w: color %q", contract.ErrInvalidInput, opts.Color)
	}
	return r, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Render 见 contract.Renderer。
func (r *Renderer) Render(original, translation string, mode contract.DisplayMode) {
	var rows []string
	switch mode {
	case contract.DisplayOriginal:
		rows = append(rows, r.paint(r.origStyle, original))
	case contract.DisplayTranslation:
		if translation == "" {
			rows = append(rows, r.paint(r.origStyle, original))
		} else {
			rows = append(rows, r.paint(r.transStyle, translation))
		}
	default:
		rows = append(rows, r.paint(r.origStyle, original))
		if translation != "" {
			rows = append(rows, r.paint(r.transStyle, translation))
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.erase()
	for _, row := range rows {
		_, _ = io.WriteString(r.w, row+"\n")
	}
	r.lastRows = len(rows)
}

// Clear 见 contract.Renderer。
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty {
		r.erase()
		r.lastRows = 0
		return
	}
	_, _ = io.WriteString(r.w, "\n")
}

// erase 上移并清除上一次输出的行（仅 TTY）。
func (r *Renderer) erase() {
	if !r.tty {
		return
	}
	for i := 0; i < r.lastRows; i++ {
		_, _ = io.WriteString(r.w, "\x1b[1A\x1b[2K")
	}
}

func (r *Renderer) paint(c text.Colors, s string) string {
	if !r.color {
		return s
	}
	return c.Sprint(s)
}

var _ contract.Renderer = (*Renderer)(nil)
