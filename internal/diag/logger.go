package diag

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 默认日志目录与轮转阈值。
const (
	DefaultLogDir = "logs"
	DefaultLogMB  = 10
	// DefaultLogKeep 为保留的已轮转文件个数。
	DefaultLogKeep = 5
)

// Logger 为结构化事件日志器：zap JSON 单行输出；事件模型固定为
// comp/stage(start|finish|error)/code/dur_ms/count/file_id/kv。
// nil *Logger 的所有方法均为 no-op。
type Logger struct {
	corrID string
	zl     *zap.Logger
	closer io.Closer
}

// NewLogger 通过配置的 level 初始化，日志写入 dir（空则 logs/），10MiB 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultLogDir
	}
	f := NewRotatingFile(dir, DefaultLogMB)
	l := NewLoggerTo(corrID, level, zapcore.AddSync(f))
	l.closer = f
	return l
}

// Close 刷新并关闭日志文件（NewLoggerTo 构造的 Logger 仅刷新）。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	err := l.Sync()
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NewLoggerTo 使用调用方提供的 WriteSyncer（测试可传 zapcore.AddSync(&buf)）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.MessageKey = "msg"
	enc.LevelKey = "level"
	enc.CallerKey = zapcore.OmitKey
	enc.StacktraceKey = zapcore.OmitKey
	enc.EncodeTime = func(t time.Time, pe zapcore.PrimitiveArrayEncoder) {
		pe.AppendString(t.UTC().Format(time.RFC3339))
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, parseLevel(level))
	zl := zap.New(core).With(zap.String("corr_id", corrID))
	return &Logger{corrID: corrID, zl: zl}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// CorrID 返回本次运行的关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Sync 刷新底层 sink。
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zl.Sync()
}

// Event 为标准事件结构。
type Event struct {
	Comp   string
	Stage  string // start|finish|error
	Code   string
	DurMS  int64
	Count  int64
	FileID string
	Msg    string
	KV     map[string]string
}

func (ev Event) fields() []zap.Field {
	fs := make([]zap.Field, 0, 7)
	fs = append(fs, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fs = append(fs, zap.String("code", ev.Code))
	}
	if ev.DurMS != 0 {
		fs = append(fs, zap.Int64("dur_ms", ev.DurMS))
	}
	if ev.Count != 0 {
		fs = append(fs, zap.Int64("count", ev.Count))
	}
	if ev.FileID != "" {
		fs = append(fs, zap.String("file_id", ev.FileID))
	}
	if len(ev.KV) > 0 {
		fs = append(fs, zap.Any("kv", ev.KV))
	}
	return fs
}

func (l *Logger) log(lv zapcore.Level, ev Event) {
	if l == nil || l.zl == nil {
		return
	}
	if ce := l.zl.Check(lv, ev.Msg); ce != nil {
		ce.Write(ev.fields()...)
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", nil)
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	return l.StartWithKV(comp, msg, fileID, nil)
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(zapcore.ErrorLevel, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID, KV: kv})
}

// Warn 记录 warn 级别的提示事件。
func (l *Logger) Warn(comp, msg string, kv map[string]string) {
	l.log(zapcore.WarnLevel, Event{Comp: comp, Stage: "finish", Msg: msg, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的“start”类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, FileID: t.fileID, Msg: msg})
}

// Since 返回计时起点以来的耗时；nil 计时器返回 0。
func (t *Timer) Since() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.t0)
}
