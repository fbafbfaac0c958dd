package diag

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"rxnfetch/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeProtocol  Code = "protocol"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 上游状态：5xx/408 视为网络问题，其余视为协议问题（URL 错误、资源不存在等）
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		s := ue.UpstreamStatus()
		if s/100 == 5 || s == http.StatusRequestTimeout {
			return CodeNetwork
		}
		return CodeProtocol
	}
	if errors.Is(err, contract.ErrUpstreamStatus) || errors.Is(err, contract.ErrArchiveInvalid) {
		return CodeProtocol
	}
	// 不变量
	if errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrPathInvalid) ||
		errors.Is(err, contract.ErrMemberMissing) ||
		errors.Is(err, contract.ErrOutputExists) {
		return CodeInvariant
	}
	// 网络（连接/DNS/超时等）
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	// I/O
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
