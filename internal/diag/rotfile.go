package diag

import (
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName 为当前日志文件名；轮转后的旧文件形如 rxnfetch-<UTC 时间戳>.log。
const LogFileName = "rxnfetch.log"

// NewRotatingFile 返回写入 dir/rxnfetch.log 的按大小轮转文件：
// - 超过 maxMB 兆字节时轮转（<=0 使用 DefaultLogMB）；
// - 只保留最近 DefaultLogKeep 个旧文件；
// - 目录在首次写入时才创建。
func NewRotatingFile(dir string, maxMB int) *lumberjack.Logger {
	if maxMB <= 0 {
		maxMB = DefaultLogMB
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, LogFileName),
		MaxSize:    maxMB,
		MaxBackups: DefaultLogKeep,
	}
}
