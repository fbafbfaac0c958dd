package targz

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"

	"rxnfetch/pkg/contract"
	"rxnfetch/plugins/extractor"
)

// TarGz 解包 .tar.gz / .tgz 归档；gzip 层使用 pgzip 并行解压。
type TarGz struct {
	opts extractor.Options
}

// New 构造 tar.gz 解包器；opts 可为 nil。
func New(opts *extractor.Options) *TarGz {
	t := &TarGz{}
	if opts != nil {
		t.opts = *opts
	}
	return t
}

var _ contract.Extractor = (*TarGz)(nil)

// Extract 解出常规文件到 destDir，按归档顺序返回成员 FileID。
func (t *TarGz) Extract(ctx context.Context, archive, destDir string) ([]contract.FileID, error) {
	sink, err := extractor.NewSink(destDir, t.opts)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(archive)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrArchiveInvalid, archive, err)
	}
	defer gz.Close()

	var out []contract.FileID
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, invalid(archive, err)
		}
		id := contract.NormalizeFileID(hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := sink.Dir(hdr.Name); err != nil {
				return out, err
			}
		case tar.TypeReg:
			if !sink.Wanted(id) {
				continue
			}
			if _, err := sink.File(ctx, hdr.Name, tr); err != nil {
				return out, invalid(archive, err)
			}
			out = append(out, id)
		default:
			// 链接、设备等不落盘
		}
	}
}

// invalid: 格式/校验错误归入 ErrArchiveInvalid，其余原样返回。
func invalid(archive string, err error) error {
	if errors.Is(err, tar.ErrHeader) || errors.Is(err, pgzip.ErrChecksum) || errors.Is(err, pgzip.ErrHeader) {
		return fmt.Errorf("%w: %s: %v", contract.ErrArchiveInvalid, archive, err)
	}
	return extractor.Corrupt(err)
}
