package tsv

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"rxnfetch/pkg/contract"
)

// Options: 列投影选项。
type Options struct {
	// Column: 0 起始的字段序号。默认 0（第一列）。
	Column int `yaml:"column"`
	// SkipLines: 每个文件跳过的前导行数。nil 时为 1（表头）。
	SkipLines *int `yaml:"skip_lines,omitempty"`
	// Delimiter: 字段分隔符，默认制表符。
	Delimiter string `yaml:"delimiter"`
	// OnlyDelimited: 为 true 时丢弃不含分隔符的行；默认整行输出。
	OnlyDelimited bool `yaml:"only_delimited"`
	// BufSize: 读缓冲大小，默认 64KiB。
	BufSize int `yaml:"buf_size,omitempty"`
}

// Projector 单遍流式抽取一列：不缓存整文件、不排序、不去重。
type Projector struct {
	col     int
	skip    int
	delim   []byte
	onlyDel bool
	bufSize int
}

// New 校验选项并构造 Projector。
func New(opts *Options) (*Projector, error) {
	p := &Projector{skip: 1, delim: []byte{'\t'}, bufSize: 64 * 1024}
	if opts == nil {
		return p, nil
	}
	if opts.Column < 0 {
		return nil, fmt.Errorf("projector tsv: %w: column must be >= 0", contract.ErrInvalidInput)
	}
	p.col = opts.Column
	if opts.SkipLines != nil {
		if *opts.SkipLines < 0 {
			return nil, fmt.Errorf("projector tsv: %w: skip_lines must be >= 0", contract.ErrInvalidInput)
		}
		p.skip = *opts.SkipLines
	}
	if opts.Delimiter != "" {
		if bytes.ContainsAny([]byte(opts.Delimiter), "\r\n") {
			return nil, fmt.Errorf("projector tsv: %w: delimiter must not contain line breaks", contract.ErrInvalidInput)
		}
		p.delim = []byte(opts.Delimiter)
	}
	p.onlyDel = opts.OnlyDelimited
	if opts.BufSize > 0 {
		p.bufSize = opts.BufSize
	}
	return p, nil
}

var _ contract.Projector = (*Projector)(nil)

// Project 读取 r，跳过前导行后逐行输出选定字段（以 \n 结尾），返回输出行数。
// CRLF 归一为 LF；末行无换行同样输出。
func (p *Projector) Project(ctx context.Context, fileID contract.FileID, r io.Reader, w io.Writer) (int64, error) {
	br := bufio.NewReaderSize(r, p.bufSize)
	var (
		acc   []byte
		lines int
		rows  int64
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			// 超长行：累积后继续
			acc = append(acc, chunk...)
			continue
		}
		line := chunk
		if len(acc) > 0 {
			acc = append(acc, chunk...)
			line = acc
		}
		if len(line) > 0 {
			lines++
			if lines > p.skip {
				emitted, werr := p.emit(w, trimEOL(line))
				if werr != nil {
					return rows, werr
				}
				if emitted {
					rows++
				}
			}
			if lines%4096 == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return rows, cerr
				}
			}
		}
		acc = acc[:0]
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("%s: %w", fileID, err)
		}
	}
}

func (p *Projector) emit(w io.Writer, line []byte) (bool, error) {
	field, ok := p.field(line)
	if !ok {
		return false, nil
	}
	if _, err := w.Write(field); err != nil {
		return true, err
	}
	_, err := w.Write(newline)
	return true, err
}

// field 返回第 col 个字段；与 cut -f 一致：无分隔符的行整行返回，字段不足时返回空。
func (p *Projector) field(line []byte) ([]byte, bool) {
	if bytes.Index(line, p.delim) < 0 {
		return line, !p.onlyDel
	}
	rest := line
	for i := 0; ; i++ {
		j := bytes.Index(rest, p.delim)
		if i == p.col {
			if j < 0 {
				return rest, true
			}
			return rest[:j], true
		}
		if j < 0 {
			return nil, true
		}
		rest = rest[j+len(p.delim):]
	}
}

var newline = []byte{'\n'}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	return bytes.TrimSuffix(b, []byte{'\r'})
}
