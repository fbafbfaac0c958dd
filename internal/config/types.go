package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// URL: 归档下载地址。
	URL string `yaml:"url"`
	// DataDir: 工作目录；归档、解包成员与合并结果都位于其下。
	DataDir     string `yaml:"data_dir"`
	ArchiveName string `yaml:"archive_name"`
	// Members: 需要投影的成员文件（相对 DataDir），按此顺序写出。
	Members    []string `yaml:"members"`
	OutputName string   `yaml:"output_name"`
	// WriteMode: overwrite|error|append。
	WriteMode string `yaml:"write_mode"`
	// RemoveArchive: 解包后删除归档；nil 表示未设置（默认保留）。
	RemoveArchive *bool `yaml:"remove_archive,omitempty"`
	// TimeoutSeconds: 下载超时（秒）；0 表示不限，nil 表示未设置（可被低优先级来源填充）。
	TimeoutSeconds *int    `yaml:"timeout_seconds,omitempty"`
	Logging        Logging `yaml:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `yaml:"components"`

	// 各组件 Options 子树，原样传入工厂。
	Options Options `yaml:"options"`
}

// Logging: 日志等级与目录；轮转阈值固定。
type Logging struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Fetcher   string `yaml:"fetcher"`
	Extractor string `yaml:"extractor"`
	Reader    string `yaml:"reader"`
	Projector string `yaml:"projector"`
	Writer    string `yaml:"writer"`
	Counter   string `yaml:"counter"`
}

// Options: 各组件的原样 YAML Options。
type Options struct {
	Fetcher   *yaml.Node `yaml:"fetcher,omitempty"`
	Extractor *yaml.Node `yaml:"extractor,omitempty"`
	Reader    *yaml.Node `yaml:"reader,omitempty"`
	Projector *yaml.Node `yaml:"projector,omitempty"`
	Writer    *yaml.Node `yaml:"writer,omitempty"`
	Counter   *yaml.Node `yaml:"counter,omitempty"`
}

// UnmarshalYAML 只校验组件键并原样保存各子树；子树内容由 registry 严格解码。
// 外层 Decoder 的 KnownFields 会作用到 yaml.Node 目标上，因此这里逐键处理。
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		*o = Options{}
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: options must be a mapping", n.Line)
	}
	var out Options
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		var slot **yaml.Node
		switch k.Value {
		case "fetcher":
			slot = &out.Fetcher
		case "extractor":
			slot = &out.Extractor
		case "reader":
			slot = &out.Reader
		case "projector":
			slot = &out.Projector
		case "writer":
			slot = &out.Writer
		case "counter":
			slot = &out.Counter
		default:
			return fmt.Errorf("line %d: options: unknown component %q", k.Line, k.Value)
		}
		if *slot != nil {
			return fmt.Errorf("line %d: options: duplicate component %q", k.Line, k.Value)
		}
		node := *v
		*slot = &node
	}
	*o = out
	return nil
}

// Timeout 返回生效的下载超时（秒），未设置为 0。
func (c Config) Timeout() int {
	if c.TimeoutSeconds == nil {
		return 0
	}
	return *c.TimeoutSeconds
}
