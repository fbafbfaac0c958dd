package contract

import "context"

// Extractor: 将本地归档解包到目标目录。
// 约束：
//  1. 成员名由归档清单决定，本系统不控制；
//  2. 绝对路径或 '..' 逃逸的成员名返回 ErrPathInvalid；
//  3. 归档损坏返回 ErrArchiveInvalid；
//  4. 不做部分解包的清理；
//  5. 返回已写出的常规文件（相对 destDir，正斜杠分隔），按归档内顺序。
type Extractor interface {
	Extract(ctx context.Context, archive, destDir string) ([]FileID, error)
}
