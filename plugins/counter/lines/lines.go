package lines

import (
	"bytes"
	"context"
	"io"
	"os"

	"rxnfetch/pkg/contract"
)

// Options: 计数选项。
type Options struct {
	// BufSize: 读缓冲大小，默认 64KiB。
	BufSize int `yaml:"buf_size,omitempty"`
}

// Counter 统计文件中的换行符数量（与 wc -l 相同：末行无换行不计）。
type Counter struct {
	bufSize int
}

func New(opts *Options) *Counter {
	c := &Counter{bufSize: 64 * 1024}
	if opts != nil && opts.BufSize > 0 {
		c.bufSize = opts.BufSize
	}
	return c
}

var _ contract.Counter = (*Counter)(nil)

// Count 流式统计 path 的行数；文件不存在返回 *os.PathError。
func (c *Counter) Count(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return CountReader(ctx, f, c.bufSize)
}

// CountReader 统计 r 中的 '\n' 个数。
func CountReader(ctx context.Context, r io.Reader, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	buf := make([]byte, bufSize)
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		k, err := r.Read(buf)
		n += int64(bytes.Count(buf[:k], []byte{'\n'}))
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}
