// Package extractor 提供各归档格式解包器共享的选项与落盘工具。
package extractor

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

// Options: 解包器通用选项。
type Options struct {
	// Include: 仅解出这些成员（按规范化 FileID 或基名匹配）；为空解出全部常规文件。
	Include []string `yaml:"include"`
	// PermFile/PermDir: 为 0 时使用 0644/0755。
	PermFile os.FileMode `yaml:"perm_file,omitempty"`
	PermDir  os.FileMode `yaml:"perm_dir,omitempty"`
	// MaxMemberBytes: 单个成员解压后上限；<=0 不限。
	MaxMemberBytes int64 `yaml:"max_member_bytes,omitempty"`
}

// Sink 负责把成员安全落到 destDir 下。
type Sink struct {
	dest    string
	include map[string]struct{}
	permF   os.FileMode
	permD   os.FileMode
	max     int64
}

// NewSink 校验 destDir 并构造 Sink。
func NewSink(destDir string, opts Options) (*Sink, error) {
	if strings.TrimSpace(destDir) == "" {
		return nil, fmt.Errorf("extract: %w: dest dir required", contract.ErrInvalidInput)
	}
	s := &Sink{dest: destDir, include: map[string]struct{}{}, permF: opts.PermFile, permD: opts.PermDir, max: opts.MaxMemberBytes}
	if s.permF == 0 {
		s.permF = 0o644
	}
	if s.permD == 0 {
		s.permD = 0o755
	}
	for _, n := range opts.Include {
		if n = strings.TrimSpace(n); n != "" {
			s.include[string(contract.NormalizeFileID(n))] = struct{}{}
		}
	}
	if err := os.MkdirAll(destDir, s.permD); err != nil {
		return nil, err
	}
	return s, nil
}

// Wanted 判断成员是否需要解出。
func (s *Sink) Wanted(id contract.FileID) bool {
	if len(s.include) == 0 {
		return true
	}
	if _, ok := s.include[string(id)]; ok {
		return true
	}
	_, ok := s.include[filepath.Base(string(id))]
	return ok
}

// Dir 创建成员目录（越界返回 ErrPathInvalid）。
func (s *Sink) Dir(name string) error {
	p, err := contract.SafeJoin(s.dest, name)
	if err != nil {
		return fmt.Errorf("%w: member %q", err, name)
	}
	return os.MkdirAll(p, s.permD)
}

// File 将 r 写入成员路径（覆盖已存在文件），返回写入字节数。
func (s *Sink) File(ctx context.Context, name string, r io.Reader) (int64, error) {
	p, err := contract.SafeJoin(s.dest, name)
	if err != nil {
		return 0, fmt.Errorf("%w: member %q", err, name)
	}
	if err := os.MkdirAll(filepath.Dir(p), s.permD); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, s.permF)
	if err != nil {
		return 0, err
	}
	src := io.Reader(&ctxReader{ctx: ctx, r: r})
	if s.max > 0 {
		src = io.LimitReader(src, s.max+1)
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	n, err := io.Copy(bw, src)
	if err == nil && s.max > 0 && n > s.max {
		err = fmt.Errorf("%w: member %q exceeds %d bytes", contract.ErrArchiveInvalid, name, s.max)
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, Corrupt(err)
}

// Corrupt 将解码期的截断/格式错误归入 ErrArchiveInvalid；其余原样返回。
func Corrupt(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", contract.ErrArchiveInvalid, err)
	}
	return err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
