package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr，stdout 只留给最终计数行）。
// - TTY: 进度单行 \r 覆盖，状态标签着色；非 TTY: 关键节点分行打印、无颜色。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	okTag   *color.Color
	failTag *color.Color
	runTag  *color.Color

	runStart  time.Time
	stage     string
	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{
		w:       w,
		enabled: enabled,
		okTag:   color.New(color.FgGreen, color.Bold),
		failTag: color.New(color.FgRed, color.Bold),
		runTag:  color.New(color.FgCyan),
	}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		// 最小 TTY 判定：字符设备
		if fi, err := f.Stat(); err == nil {
			t.isTTY = fi.Mode()&os.ModeCharDevice != 0
		}
	}
	if !t.isTTY {
		t.okTag.DisableColor()
		t.failTag.DisableColor()
		t.runTag.DisableColor()
	} else {
		t.okTag.EnableColor()
		t.failTag.EnableColor()
		t.runTag.EnableColor()
	}
	return t
}

// RunStart: 记录运行上下文。
func (t *Terminal) RunStart(url, dataDir string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.runStart = time.Now()
	t.println(fmt.Sprintf("%s url=%s | dir=%s", t.runTag.Sprint("[run]"), safe(url), safe(dataDir)))
}

// StageStart: 标记当前阶段。
func (t *Terminal) StageStart(stage string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.stage = stage
	if !t.isTTY {
		t.println(fmt.Sprintf("[%s] 开始", stage))
	}
}

// StageProgress: 周期性进度（仅 TTY，≥100ms 节流）。
func (t *Terminal) StageProgress(done int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || !t.isTTY {
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[%s] %s | 用时 %s", t.stage, formatBytes(done), formatSince(t.runStart)))
}

// StageFinish: 完成当前阶段（立即刷新并换行）。
func (t *Terminal) StageFinish(ok bool, dur time.Duration, detail string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := t.okTag.Sprintf("[%s]", t.stage)
	if !ok {
		tag = t.failTag.Sprintf("[%s]", t.stage)
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
		_, _ = io.WriteString(t.w, "\r")
	}
	line := fmt.Sprintf("%s %s | 用时 %s", tag, statusWord(ok), formatDur(dur))
	if d := strings.TrimSpace(detail); d != "" {
		line += " | " + safe(d)
	}
	t.println(line)
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := t.okTag.Sprint("[ok]")
	if !ok {
		tag = t.failTag.Sprint("[fail]")
	}
	t.println(fmt.Sprintf("%s 全部完成 | 总用时 %s", tag, formatDur(dur)))
}

func statusWord(ok bool) string {
	if ok {
		return "done"
	}
	return "fail"
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 清尾：若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	// 秒，保留 1 位小数
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
