// Package auto 按归档文件名选择解包格式。
package auto

import (
	"context"
	"fmt"
	"strings"

	"rxnfetch/pkg/contract"
	"rxnfetch/plugins/extractor"
	"rxnfetch/plugins/extractor/targz"
	"rxnfetch/plugins/extractor/zip"
)

type Auto struct {
	zip   *zip.Zip
	targz *targz.TarGz
}

func New(opts *extractor.Options) *Auto {
	return &Auto{zip: zip.New(opts), targz: targz.New(opts)}
}

var _ contract.Extractor = (*Auto)(nil)

// Format 返回按扩展名判定的格式（zip|targz），无法识别时返回空串。
func Format(archive string) string {
	a := strings.ToLower(archive)
	switch {
	case strings.HasSuffix(a, ".zip"):
		return "zip"
	case strings.HasSuffix(a, ".tar.gz"), strings.HasSuffix(a, ".tgz"):
		return "targz"
	}
	return ""
}

func (a *Auto) Extract(ctx context.Context, archive, destDir string) ([]contract.FileID, error) {
	switch Format(archive) {
	case "zip":
		return a.zip.Extract(ctx, archive, destDir)
	case "targz":
		return a.targz.Extract(ctx, archive, destDir)
	}
	return nil, fmt.Errorf("%w: unknown archive format %q", contract.ErrArchiveInvalid, archive)
}
