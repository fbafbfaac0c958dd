package contract

import (
	"context"
	"io"
)

// Fetcher: 远端资源获取（单次 GET）。
// 约束：
//  1. 仅负责传输，不落盘；调用方把返回的字节流交给 Writer；
//  2. 原样透传响应体，不做校验和/大小校验；
//  3. 不重试、不断点续传；
//  4. 非 2xx 返回实现 UpstreamError 的错误；
//  5. 调用方负责 Close。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}
