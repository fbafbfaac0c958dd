package contract

import (
	"context"
	"io"
)

// Projector: 列投影（单文件、单趟流式）。
// 约束：
//  1. 跳过表头行后，每行仅输出选定的分隔字段，以 '\n' 结尾；
//  2. 不缓冲整个输入、不排序、不去重；
//  3. 少于两行（仅表头或空文件）时不输出任何行；
//  4. 返回实际输出的行数。
type Projector interface {
	Project(ctx context.Context, fileID FileID, r io.Reader, w io.Writer) (int64, error)
}
