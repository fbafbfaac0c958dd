package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// 默认值。下载地址可被 YAML/ENV/CLI 覆盖。
const (
	DefaultURL         = "https://ndownloader.figshare.com/files/8664379"
	DefaultDataDir     = "data"
	DefaultArchiveName = "uspto_reactions.zip"
	DefaultOutputName  = "reactions.rsmi"
	DefaultWriteMode   = "overwrite"
	EnvPrefix          = "RXNFETCH_"
)

// DefaultMembers 为归档中需要投影的两个成员。
var DefaultMembers = []string{
	"1976_Sep2016_USPTOgrants_smiles.rsmi",
	"2001_Sep2016_USPTOapplications_smiles.rsmi",
}

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		URL:         DefaultURL,
		DataDir:     DefaultDataDir,
		ArchiveName: DefaultArchiveName,
		Members:     cloneStrings(DefaultMembers),
		OutputName:  DefaultOutputName,
		WriteMode:   DefaultWriteMode,
		Logging:     Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Fetcher:   "http",
			Extractor: "zip",
			Reader:    "fs",
			Projector: "tsv",
			Writer:    "fs",
			Counter:   "lines",
		},
	}
}

// LoadYAML 从文件路径或原始 YAML 解析 Config（严格拒绝未知字段）。
func LoadYAML(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/列表/原样 YAML 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if s := strings.TrimSpace(over.URL); s != "" {
		out.URL = s
	}
	if s := strings.TrimSpace(over.DataDir); s != "" {
		out.DataDir = s
	}
	if s := strings.TrimSpace(over.ArchiveName); s != "" {
		out.ArchiveName = s
	}
	if len(over.Members) > 0 {
		out.Members = cloneStrings(over.Members)
	}
	if s := strings.TrimSpace(over.OutputName); s != "" {
		out.OutputName = s
	}
	if s := strings.TrimSpace(over.WriteMode); s != "" {
		out.WriteMode = strings.ToLower(s)
	}
	if over.RemoveArchive != nil {
		v := *over.RemoveArchive
		out.RemoveArchive = &v
	}
	// 显式给出的 0 也覆盖（清除低优先级来源的超时）
	if over.TimeoutSeconds != nil {
		v := *over.TimeoutSeconds
		out.TimeoutSeconds = &v
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}

	// 组件名（空不覆盖）
	if over.Components.Fetcher != "" {
		out.Components.Fetcher = over.Components.Fetcher
	}
	if over.Components.Extractor != "" {
		out.Components.Extractor = over.Components.Extractor
	}
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Projector != "" {
		out.Components.Projector = over.Components.Projector
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Counter != "" {
		out.Components.Counter = over.Components.Counter
	}

	// Options（完整替换对应键）
	if over.Options.Fetcher != nil {
		out.Options.Fetcher = over.Options.Fetcher
	}
	if over.Options.Extractor != nil {
		out.Options.Extractor = over.Options.Extractor
	}
	if over.Options.Reader != nil {
		out.Options.Reader = over.Options.Reader
	}
	if over.Options.Projector != nil {
		out.Options.Projector = over.Options.Projector
	}
	if over.Options.Writer != nil {
		out.Options.Writer = over.Options.Writer
	}
	if over.Options.Counter != nil {
		out.Options.Counter = over.Options.Counter
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 RXNFETCH_；集合外的键忽略。
// 支持：URL, DATA_DIR, ARCHIVE_NAME, MEMBERS（逗号分隔）, OUTPUT_NAME, WRITE_MODE,
// REMOVE_ARCHIVE, TIMEOUT_SECONDS, LOG_LEVEL, LOG_DIR, COMPONENTS_*
// 以及 OPTIONS__<COMPONENT>_YAML（原样 YAML 子树）。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		switch nk {
		case "URL":
			over.URL = strings.TrimSpace(val)
		case "DATA_DIR":
			over.DataDir = strings.TrimSpace(val)
		case "ARCHIVE_NAME":
			over.ArchiveName = strings.TrimSpace(val)
		case "MEMBERS":
			over.Members = splitComma(val)
		case "OUTPUT_NAME":
			over.OutputName = strings.TrimSpace(val)
		case "WRITE_MODE":
			over.WriteMode = strings.TrimSpace(val)
		case "REMOVE_ARCHIVE":
			if strings.TrimSpace(val) == "" {
				continue
			}
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return over, fmt.Errorf("env %sREMOVE_ARCHIVE: %w", EnvPrefix, err)
			}
			over.RemoveArchive = &b
		case "TIMEOUT_SECONDS":
			if strings.TrimSpace(val) == "" {
				continue
			}
			v, err := atoi(val)
			if err != nil {
				return over, fmt.Errorf("env %sTIMEOUT_SECONDS: %w", EnvPrefix, err)
			}
			over.TimeoutSeconds = &v
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOG_DIR":
			over.Logging.Dir = strings.TrimSpace(val)
		case "COMPONENTS_FETCHER":
			over.Components.Fetcher = strings.TrimSpace(val)
		case "COMPONENTS_EXTRACTOR":
			over.Components.Extractor = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_PROJECTOR":
			over.Components.Projector = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "COMPONENTS_COUNTER":
			over.Components.Counter = strings.TrimSpace(val)
		default:
			if !strings.HasPrefix(nk, "OPTIONS__") || !strings.HasSuffix(nk, "_YAML") {
				continue
			}
			// 空值视为未设置，避免清空配置文件中的选项
			if strings.TrimSpace(val) == "" {
				continue
			}
			comp := strings.TrimSuffix(strings.TrimPrefix(nk, "OPTIONS__"), "_YAML")
			n, err := parseNode(val)
			if err != nil {
				return over, fmt.Errorf("env %s: %w", kv[:eq], err)
			}
			switch comp {
			case "FETCHER":
				over.Options.Fetcher = n
			case "EXTRACTOR":
				over.Options.Extractor = n
			case "READER":
				over.Options.Reader = n
			case "PROJECTOR":
				over.Options.Projector = n
			case "WRITER":
				over.Options.Writer = n
			case "COUNTER":
				over.Options.Counter = n
			}
		}
	}
	return over, nil
}

// parseNode 解析一段 YAML 为 Options 子树（取文档根节点）。
func parseNode(s string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, err
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0], nil
	}
	return &doc, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
