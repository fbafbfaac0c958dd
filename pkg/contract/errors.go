package contract

import "errors"

// 最小错误分类（用于日志分类与上层策略判定）。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 调用参数或选项非法。
	ErrInvalidInput = errors.New("invalid input")
	// ErrArchiveInvalid: 归档损坏、截断或格式不被支持。
	ErrArchiveInvalid = errors.New("archive invalid")
	// ErrMemberMissing: 解包后缺少预期的成员文件。
	ErrMemberMissing = errors.New("member missing")
	// ErrOutputExists: 写出策略为 error 时目标已存在。
	ErrOutputExists = errors.New("output exists")
	// ErrUpstreamStatus: 上游返回非 2xx 状态。
	ErrUpstreamStatus = errors.New("upstream status")
)
