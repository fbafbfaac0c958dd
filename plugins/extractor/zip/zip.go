package zip

import (
	"context"
	"errors"
	"fmt"

	kzip "github.com/klauspost/compress/zip"

	"rxnfetch/pkg/contract"
	"rxnfetch/plugins/extractor"
)

// Zip 解包 .zip 归档。
type Zip struct {
	opts extractor.Options
}

// New 构造 zip 解包器；opts 可为 nil。
func New(opts *extractor.Options) *Zip {
	z := &Zip{}
	if opts != nil {
		z.opts = *opts
	}
	return z
}

var _ contract.Extractor = (*Zip)(nil)

// Extract 解出 archive 内的常规文件到 destDir，按归档顺序返回成员 FileID。
// 越界成员返回 ErrPathInvalid；损坏归档返回 ErrArchiveInvalid。
func (z *Zip) Extract(ctx context.Context, archive, destDir string) ([]contract.FileID, error) {
	sink, err := extractor.NewSink(destDir, z.opts)
	if err != nil {
		return nil, err
	}
	zr, err := kzip.OpenReader(archive)
	if err != nil {
		if errors.Is(err, kzip.ErrFormat) || errors.Is(err, kzip.ErrAlgorithm) {
			return nil, fmt.Errorf("%w: %s: %v", contract.ErrArchiveInvalid, archive, err)
		}
		return nil, err
	}
	defer zr.Close()

	var out []contract.FileID
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		id := contract.NormalizeFileID(f.Name)
		mode := f.Mode()
		if mode.IsDir() {
			if err := sink.Dir(f.Name); err != nil {
				return out, err
			}
			continue
		}
		// 符号链接、设备等非常规成员不落盘
		if !mode.IsRegular() || !sink.Wanted(id) {
			continue
		}
		if err := z.one(ctx, sink, f); err != nil {
			return out, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (z *Zip) one(ctx context.Context, sink *extractor.Sink, f *kzip.File) error {
	rc, err := f.Open()
	if err != nil {
		if errors.Is(err, kzip.ErrAlgorithm) || errors.Is(err, kzip.ErrFormat) {
			return fmt.Errorf("%w: member %q: %v", contract.ErrArchiveInvalid, f.Name, err)
		}
		return err
	}
	defer rc.Close()
	if _, err := sink.File(ctx, f.Name, rc); err != nil {
		if errors.Is(err, kzip.ErrChecksum) {
			return fmt.Errorf("%w: member %q: %v", contract.ErrArchiveInvalid, f.Name, err)
		}
		return err
	}
	return nil
}
