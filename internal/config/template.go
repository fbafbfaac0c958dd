package config

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 组件名采用仓库内置实现，选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	keep := false
	cfg.RemoveArchive = &keep
	noTimeout := 0
	cfg.TimeoutSeconds = &noTimeout
	cfg.Options.Fetcher = mustNode(`
timeout_seconds: 0
user_agent: ""
extra_headers: {}
`)
	cfg.Options.Extractor = mustNode(`
include: []
perm_file: 0
perm_dir: 0
max_member_bytes: 0
`)
	cfg.Options.Reader = mustNode(`
buf_size: 65536
allow_exts: [".rsmi"]
exclude_dir_names: []
`)
	cfg.Options.Projector = mustNode(`
column: 0
skip_lines: 1
delimiter: "\t"
only_delimited: false
`)
	// mode 留空时继承顶层 write_mode
	cfg.Options.Writer = mustNode(`
output_dir: ""
atomic: true
buf_size: 65536
`)
	cfg.Options.Counter = mustNode(`
buf_size: 65536
`)
	return cfg
}

// TemplateYAML 将模板编码为 YAML（两空格缩进）。
func TemplateYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(DefaultTemplateConfig()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mustNode(s string) *yaml.Node {
	n, err := parseNode(s)
	if err != nil {
		panic(err)
	}
	return n
}
