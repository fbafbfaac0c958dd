package contract

import "context"

// Counter: 统计文件行数。
type Counter interface {
	Count(ctx context.Context, path string) (int64, error)
}
