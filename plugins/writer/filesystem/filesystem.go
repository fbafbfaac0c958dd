package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rxnfetch/pkg/contract"
)

// 写出策略：目标已存在时的行为。
const (
	// ModeOverwrite: 覆盖（默认）；Atomic 时为同目录临时文件 + rename。
	ModeOverwrite = "overwrite"
	// ModeError: 目标已存在即返回 contract.ErrOutputExists。
	ModeError = "error"
	// ModeAppend: 追加；重复运行会重复写入同一批行。
	ModeAppend = "append"
)

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `yaml:"output_dir"`
	// Mode: overwrite|error|append，空值为 overwrite。
	Mode string `yaml:"mode"`
	// Atomic: 覆盖写时是否使用原子替换。未提供时为 true；显式 false 可关闭。
	Atomic *bool `yaml:"atomic,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认 0644/0755。
	PermFile os.FileMode `yaml:"perm_file,omitempty"`
	PermDir  os.FileMode `yaml:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用默认 64KiB。
	BufSize int `yaml:"buf_size,omitempty"`
}

type FS struct {
	root    string
	mode    string
	atomic  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer 实现。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("writer fs: %w: output_dir required", contract.ErrInvalidInput)
	}
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	switch mode {
	case "":
		mode = ModeOverwrite
	case ModeOverwrite, ModeError, ModeAppend:
	default:
		return nil, fmt.Errorf("writer fs: %w: unknown mode %q", contract.ErrInvalidInput, opts.Mode)
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 64 * 1024
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	return &FS{root: opts.OutputDir, mode: mode, atomic: atomic, permF: pf, permD: pd, bufSize: bsz}, nil
}

var (
	_ contract.Writer      = (*FS)(nil)
	_ contract.Locator     = (*FS)(nil)
	_ contract.Preflighter = (*FS)(nil)
)

// Mode 返回生效的写出策略。
func (w *FS) Mode() string { return w.mode }

// Locate 返回 id 映射到的本地路径（与 Write 相同的映射与越界校验）。
func (w *FS) Locate(id contract.ArtifactID) (string, error) {
	return contract.SafeJoin(w.root, string(id))
}

// Preflight 仅在 error 策略下检查目标：已存在返回 ErrOutputExists。
// 写入时仍以 O_EXCL 兜底并发创建。
func (w *FS) Preflight(id contract.ArtifactID) error {
	dest, err := w.Locate(id)
	if err != nil {
		return err
	}
	if w.mode != ModeError {
		return nil
	}
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("%w: %s", contract.ErrOutputExists, dest)
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Write 将 r 的全部字节按写出策略写入到基于 id 映射的目标路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dest, err := w.Locate(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}

	switch w.mode {
	case ModeError:
		return w.writeExclusive(ctx, dest, r)
	case ModeAppend:
		return w.writeFlags(ctx, dest, r, os.O_CREATE|os.O_WRONLY|os.O_APPEND)
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeFlags(ctx, dest, r, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

func (w *FS) writeFlags(ctx context.Context, dest string, r io.Reader, flag int) error {
	f, err := os.OpenFile(dest, flag, w.permF)
	if err != nil {
		return err
	}
	if err := w.copyTo(ctx, f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeExclusive: O_EXCL 创建；失败时删除半成品，保证“已存在即报错”不留痕。
func (w *FS) writeExclusive(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, w.permF)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", contract.ErrOutputExists, dest)
		}
		return err
	}
	if err := w.copyTo(ctx, f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return err
	}
	return f.Close()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	if err := w.copyTo(ctx, tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// os.Rename 在 Windows 上同样以 MOVEFILE_REPLACE_EXISTING 替换
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 最佳努力：同步父目录，提升崩溃安全性
	_ = syncDir(dir)
	return nil
}

func (w *FS) copyTo(ctx context.Context, f *os.File, r io.Reader) error {
	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}
	return cr.r.Read(p)
}
