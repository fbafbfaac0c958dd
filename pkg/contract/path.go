package contract

import (
	"path"
	"path/filepath"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// SafeJoin 将归档成员名拼接到 root 下，拒绝越界。
// 以下情况返回 ErrPathInvalid：空名、绝对路径、Windows 卷名、清理后为 '.' 或以 '..' 开头。
func SafeJoin(root, name string) (string, error) {
	id := string(NormalizeFileID(name))
	if id == "." || id == "" {
		return "", ErrPathInvalid
	}
	if strings.HasPrefix(id, "/") || filepath.VolumeName(id) != "" {
		return "", ErrPathInvalid
	}
	if id == ".." || strings.HasPrefix(id, "../") {
		return "", ErrPathInvalid
	}
	return filepath.Join(root, filepath.FromSlash(id)), nil
}
