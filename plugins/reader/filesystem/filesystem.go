package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"subsync/pkg/contract"
)

// Options 为字幕源读取器配置。
type Options struct {
	// BufSize: 读缓冲区大小（字节），默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 目录递归时跳过的目录基名（大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Exts: 目录扫描时接受的扩展名（含点）。nil 采用 DefaultExts；
	// 显式空切片表示不过滤。单文件 root 不受此限制。
	Exts []string `json:"exts"`
}

// DefaultExts 为默认识别的字幕源扩展名。
var DefaultExts = []string{".srt", ".json", ".json3", ".xml", ".srv3"}

// FileSystem 从文件、目录或 STDIN 读取字幕源。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	exts       map[string]struct{}
}

func New(opts *Options) *FileSystem {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.BufSize <= 0 {
		o.BufSize = 64 * 1024
	}
	r := &FileSystem{bufSize: o.BufSize, excludeDir: lowerSet(o.ExcludeDirNames)}
	switch {
	case o.Exts == nil:
		r.exts = lowerSet(DefaultExts)
	case len(o.Exts) > 0:
		r.exts = lowerSet(o.Exts)
	}
	return r
}

func lowerSet(ss []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}

// Iterate 依序访问 roots；目录按 WalkDir 的字典序递归（不跟随目录符号链接）。
// roots 为空或仅含 "-" 时读取 STDIN，FileID 为 "stdin"。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.FileID("stdin"), newBufferedCloser(os.Stdin, r.bufSize))
	}
	for _, s := range roots {
		if s == "-" {
			return fmt.Errorf("stdin '-' cannot be mixed with other roots: %w", contract.ErrInvalidInput)
		}
	}
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := r.walk(ctx, root, yield); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := r.open(root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) walk(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if _, skip := r.excludeDir[strings.ToLower(d.Name())]; skip && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if r.exts != nil {
			if _, ok := r.exts[strings.ToLower(filepath.Ext(p))]; !ok {
				return nil
			}
		}
		// 符号链接仅接受指向常规文件的情形
		info, err := os.Stat(p)
		if err != nil {
			if d.Type()&fs.ModeSymlink != 0 && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return r.open(p, yield)
	})
}

func (r *FileSystem) open(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(contract.NormalizeFileID(p), brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

var _ contract.Reader = (*FileSystem)(nil)

// bufferedCloser 组合 bufio.Reader 与底层 Closer。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
