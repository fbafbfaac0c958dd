package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "rxnfetch/internal/config"
	"rxnfetch/internal/diag"
	"rxnfetch/internal/pipeline"
)

var pipelineRun = pipeline.Run

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

// 退出码：0 成功；1 运行期（阶段）失败；3 配置/用法错误。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, format string, a ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, a...)}
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute 运行根命令并映射退出码；stdout 只承载最终计数行。
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(ee.err, context.Canceled) {
			_, _ = fmt.Fprintln(stderr, ee.err)
		}
		return ee.code
	}
	// cobra 的旗标/参数错误
	_, _ = fmt.Fprintln(stderr, err)
	return exitConfig
}

type runFlags struct {
	config        string
	dataDir       string
	url           string
	output        string
	writeMode     string
	format        string
	logLevel      string
	status        bool
	timeout       int
	removeArchive bool
}

func newRootCmd() *cobra.Command {
	var fl runFlags
	root := &cobra.Command{
		Use:           "rxnfetch",
		Short:         "下载 USPTO 反应数据归档，抽取反应 SMILES 列并计数",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, &fl)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&fl.config, "config", "", "配置文件路径（YAML）；缺省读取 ./config.yaml（若存在）")
	pf.StringVar(&fl.dataDir, "data-dir", "", "工作目录（覆盖配置）")
	pf.StringVar(&fl.url, "url", "", "归档下载地址（覆盖配置）")
	pf.StringVar(&fl.output, "output", "", "合并结果文件名，相对 data-dir（覆盖配置）")
	pf.StringVar(&fl.writeMode, "write-mode", "", "结果已存在时的策略：overwrite|error|append")
	pf.StringVar(&fl.format, "format", "", "归档格式：zip|targz|auto（覆盖 components.extractor）")
	pf.StringVar(&fl.logLevel, "log-level", "", "日志等级：debug|info|warn|error")
	pf.BoolVar(&fl.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.IntVar(&fl.timeout, "timeout", 0, "下载超时（秒）；0 表示不限")
	pf.BoolVar(&fl.removeArchive, "remove-archive", false, "解包后删除归档")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "执行 fetch → extract → project → count（默认命令）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, &fl)
		},
	})
	root.AddCommand(newInitConfigCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "打印版本",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rxnfetch %s\n", version)
		},
	})
	return root
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在指定目录生成默认 config.yaml 与 .env 模板（已存在则不覆盖）；dir 为 - 时输出到 stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if dir == "-" {
				if err := writeConfig(cmd.OutOrStdout(), "-"); err != nil {
					return fail(exitConfig, "生成默认配置失败: %w", err)
				}
				return nil
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fail(exitConfig, "生成默认配置失败: %w", err)
			}
			if err := writeConfig(nil, filepath.Join(dir, "config.yaml")); err != nil {
				return fail(exitConfig, "生成默认配置失败: %w", err)
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

// loadConfig 按 Defaults → YAML → ENV → CLI 的优先级构建最终配置。
func loadConfig(cmd *cobra.Command, fl *runFlags) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	var cfgYAML []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_YAML"); s != "" {
		cfgYAML = []byte(s)
	}
	path := fl.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	// 默认读取工作目录下 config.yaml（若存在）
	if path == "" && len(cfgYAML) == 0 {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" || len(cfgYAML) > 0 {
		base, err := cfgpkg.LoadYAML(path, cfgYAML)
		if err != nil {
			return cfg, fmt.Errorf("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, fmt.Errorf("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖：仅显式给出的旗标生效
	var over cfgpkg.Config
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		over.DataDir = fl.dataDir
	}
	if flags.Changed("url") {
		over.URL = fl.url
	}
	if flags.Changed("output") {
		over.OutputName = fl.output
	}
	if flags.Changed("write-mode") {
		over.WriteMode = fl.writeMode
	}
	if flags.Changed("format") {
		over.Components.Extractor = strings.TrimSpace(fl.format)
	}
	if flags.Changed("log-level") {
		over.Logging.Level = fl.logLevel
	}
	if flags.Changed("timeout") {
		v := fl.timeout
		over.TimeoutSeconds = &v
	}
	if flags.Changed("remove-archive") {
		v := fl.removeArchive
		over.RemoveArchive = &v
	}
	return cfgpkg.Merge(cfg, over), nil
}

func runPipeline(cmd *cobra.Command, fl *runFlags) error {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")

	cfg, err := loadConfig(cmd, fl)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		// 打印有效配置，便于诊断
		_ = dumpConfig(cmd.ErrOrStderr(), cfg)
		return fail(exitConfig, "配置校验失败: %w", err)
	}

	logger := diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	defer func() { _ = logger.Close() }()

	if err := preflightDataDir(cfg.DataDir); err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return fail(exitConfig, "工作目录不可写或无法创建: %w", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return fail(exitConfig, "装配失败: %w", err)
	}

	// 终端信息提示（非日志）：stderr，按 CLI 启用
	term := diag.NewTerminal(cmd.ErrOrStderr(), fl.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	logger.DebugStart("config", "effective", "", map[string]string{
		"url":          cfg.URL,
		"data_dir":     cfg.DataDir,
		"archive_name": cfg.ArchiveName,
		"members":      strings.Join(cfg.Members, ","),
		"output_name":  cfg.OutputName,
		"write_mode":   cfg.WriteMode,
		"fetcher":      cfg.Components.Fetcher,
		"extractor":    cfg.Components.Extractor,
		"reader":       cfg.Components.Reader,
		"projector":    cfg.Components.Projector,
		"writer":       cfg.Components.Writer,
		"counter":      cfg.Components.Counter,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := logger.Start("pipeline", "run")
	rep, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		code := string(diag.Classify(err))
		logger.Error("pipeline", code, "first error", &start)
		diag.IncOp("pipeline", "run", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		return fail(exitRuntime, "运行失败: %w", err)
	}
	t.Finish("run", rep.Count)
	diag.IncOp("pipeline", "run", "success")
	diag.ObserveDuration("pipeline", "run", time.Since(start).Milliseconds())
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d reactions\n", rep.Count)
	return err
}

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	_ = enc.Close()
	_, err := fmt.Fprintf(w, "有效配置:\n%s", buf.String())
	return err
}

// writeConfig 写出模板配置；path 为 "-" 时写到 w，否则创建文件且不覆盖已存在文件。
func writeConfig(w io.Writer, path string) error {
	b, err := cfgpkg.TemplateYAML()
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = w.Write(b)
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(b)
	return err
}

// preflightDataDir 启动前检查工作目录可写性。
// - 目录已存在：尝试创建并删除临时文件；
// - 目录不存在：检查最近的已存在祖先目录可写（创建并删除临时目录）。
func preflightDataDir(dir string) error {
	if st, err := os.Stat(dir); err == nil {
		if !st.IsDir() {
			return fmt.Errorf("路径存在但不是目录: %s", dir)
		}
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	} else if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(filepath.Clean(dir))
	if parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	return preflightParent(parent)
}

func preflightParent(dir string) error {
	st, err := os.Stat(dir)
	if os.IsNotExist(err) {
		parent := filepath.Dir(dir)
		if parent == dir {
			return err
		}
		return preflightParent(parent)
	}
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", dir)
	}
	tmpd, err := os.MkdirTemp(dir, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}
