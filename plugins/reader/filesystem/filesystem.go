package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rxnfetch/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `yaml:"buf_size"`
	// AllowExts: 目录扫描时仅接受这些扩展名（含点，大小写不敏感）。
	// 为空时默认 [".rsmi"]；显式给出 ["*"] 接受全部。
	// 仅影响目录递归，显式给出的文件 root 总是被读取。
	AllowExts []string `yaml:"allow_exts"`
	// ExcludeDirNames: 在扫描目录时跳过这些目录名（基名完全匹配）。
	ExcludeDirNames []string `yaml:"exclude_dir_names"`
}

// FileSystem 按稳定顺序遍历成员文件或目录。
type FileSystem struct {
	bufSize    int
	allowAll   bool
	allowExt   map[string]struct{}
	excludeDir map[string]struct{}
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	r := &FileSystem{bufSize: defaultBuf, allowExt: map[string]struct{}{}, excludeDir: map[string]struct{}{}}
	if opts == nil {
		opts = &Options{}
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	exts := opts.AllowExts
	if len(exts) == 0 {
		exts = []string{".rsmi"}
	}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		switch {
		case e == "*":
			r.allowAll = true
		case e == "":
		case !strings.HasPrefix(e, "."):
			r.allowExt["."+e] = struct{}{}
		default:
			r.allowExt[e] = struct{}{}
		}
	}
	for _, name := range opts.ExcludeDirNames {
		if name == "" {
			continue
		}
		r.excludeDir[strings.ToLower(name)] = struct{}{}
	}
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Iterate 依次遍历 roots（保持给定顺序），对每个常规文件调用 yield。
// yield 负责关闭 rc；yield 返回错误时由 Iterate 关闭并中止。
// 显式文件 root 不存在时返回包裹 contract.ErrMemberMissing 的错误。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if len(roots) == 0 {
		return fmt.Errorf("reader fs: %w: no roots", contract.ErrInvalidInput)
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	info, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", contract.ErrMemberMissing, root)
		}
		return err
	}
	// 仅跟随到常规文件；目录符号链接不跟随（忽略）
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return r.open(root, yield)
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.open(root, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	// 稳定顺序：字典序
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// 先目录（不跟随目录符号链接），再文件
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.IsDir() || !r.accept(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			if !t.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			// 设备、FIFO 等跳过
			continue
		}
		if err := r.open(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) accept(name string) bool {
	if r.allowAll {
		return true
	}
	_, ok := r.allowExt[strings.ToLower(filepath.Ext(name))]
	return ok
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

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
