package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv 读取工作目录下的 .env 并注入进程环境。
// 文件不存在时忽略；语法（export 前缀、引号、转义）交由 godotenv 解析。
// 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	for k, v := range vals {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# rxnfetch .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > YAML > 默认值\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（二选一）\n")
	b.WriteString("RXNFETCH_CONFIG_FILE=\n")
	b.WriteString("RXNFETCH_CONFIG_YAML=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"URL", "DATA_DIR", "ARCHIVE_NAME", "MEMBERS", "OUTPUT_NAME", "WRITE_MODE", "REMOVE_ARCHIVE", "TIMEOUT_SECONDS", "LOG_LEVEL", "LOG_DIR"} {
		b.WriteString("RXNFETCH_" + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"FETCHER", "EXTRACTOR", "READER", "PROJECTOR", "WRITER", "COUNTER"} {
		b.WriteString("RXNFETCH_COMPONENTS_" + k + "=\n")
	}
	b.WriteString("\n# 组件选项（原样 YAML，例如 {timeout_seconds: 600}）\n")
	for _, k := range []string{"FETCHER", "EXTRACTOR", "READER", "PROJECTOR", "WRITER", "COUNTER"} {
		b.WriteString("RXNFETCH_OPTIONS__" + k + "_YAML=\n")
	}

	// 写入（不覆盖）
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
