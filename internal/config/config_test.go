package config

import (
	"errors"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"rxnfetch/pkg/contract"
	wfs "rxnfetch/plugins/writer/filesystem"
)

// 解析完整 config.yaml
func TestLoadYAML(t *testing.T) {
	cfg, err := LoadYAML(filepath.Join("testdata", "basic.yaml"), nil)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.URL != "https://example.org/files/uspto.zip" || cfg.DataDir != "work" {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	if len(cfg.Members) != 2 || cfg.WriteMode != "error" || cfg.RemoveArchive == nil || !*cfg.RemoveArchive {
		t.Fatalf("字段映射错误: %+v", cfg)
	}
	if cfg.Options.Writer == nil || cfg.Options.Projector == nil || cfg.Options.Fetcher != nil {
		t.Fatalf("options 子树错误: %+v", cfg.Options)
	}
	if cfg.Timeout() != 120 {
		t.Fatalf("timeout 错误: %d", cfg.Timeout())
	}
	// options 子树可交给 registry 严格解码
	cfg.DataDir = t.TempDir()
	if _, _, err := Assemble(Merge(Defaults(), cfg)); err != nil {
		t.Fatalf("装配失败: %v", err)
	}
	merged := Merge(Defaults(), cfg)
	if merged.ArchiveName != DefaultArchiveName || merged.Components.Extractor != "auto" || merged.Components.Fetcher != "http" {
		t.Fatalf("合并结果错误: %+v", merged)
	}
	if err := Validate(merged); err != nil {
		t.Fatalf("校验失败: %v", err)
	}
}

// 含非法字段
func TestLoadYAMLUnknown(t *testing.T) {
	if _, err := LoadYAML("", []byte("unknown: 1\n")); err == nil {
		t.Fatalf("应当返回错误")
	}
	if _, err := LoadYAML("", nil); err == nil {
		t.Fatalf("无来源应当返回错误")
	}
	if _, err := LoadYAML("does-not-exist.yaml", nil); err == nil {
		t.Fatalf("文件不存在应当返回错误")
	}
}

// options 只接受已知组件键；子树原样保留，未知子键留给 registry 报错
func TestLoadYAMLOptions(t *testing.T) {
	cfg, err := LoadYAML("", []byte("options:\n  fetcher:\n    user_agent: x\n    extra_headers: {Accept: '*/*'}\n  counter:\n    buf_size: 4096\n"))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cfg.Options.Fetcher == nil || cfg.Options.Fetcher.Kind != yaml.MappingNode || cfg.Options.Counter == nil {
		t.Fatalf("options 子树错误: %+v", cfg.Options)
	}
	if _, err := LoadYAML("", []byte("options:\n  uploader: {}\n")); err == nil {
		t.Fatalf("未知组件键应失败")
	}
	if _, err := LoadYAML("", []byte("options:\n  reader: {}\n  reader: {}\n")); err == nil {
		t.Fatalf("重复组件键应失败")
	}
	if _, err := LoadYAML("", []byte("options: [1, 2]\n")); err == nil {
		t.Fatalf("非映射 options 应失败")
	}
	cfg, err = LoadYAML("", []byte("options:\n"))
	if err != nil || cfg.Options.Reader != nil {
		t.Fatalf("空 options 应为零值: %v", err)
	}
	cfg, err = LoadYAML("", []byte("options:\n  projector: {column: 0, bogus: 1}\n"))
	if err != nil {
		t.Fatalf("子树内容不在此处校验: %v", err)
	}
	cfg = Merge(Defaults(), cfg)
	cfg.DataDir = t.TempDir()
	if _, _, err := Assemble(cfg); err == nil {
		t.Fatalf("未知子键应在装配时失败")
	}
}

// ENV 覆盖部分字段
func TestEnvOverlay(t *testing.T) {
	env := []string{
		"RXNFETCH_URL=https://mirror.example/u.zip",
		"RXNFETCH_MEMBERS=a.rsmi, b.rsmi",
		"RXNFETCH_WRITE_MODE=append",
		"RXNFETCH_REMOVE_ARCHIVE=true",
		"RXNFETCH_TIMEOUT_SECONDS=30",
		"RXNFETCH_LOG_LEVEL=warn",
		"RXNFETCH_COMPONENTS_EXTRACTOR=targz",
		"RXNFETCH_OPTIONS__PROJECTOR_YAML={column: 1}",
		"RXNFETCH_OPTIONS__WRITER_YAML=",
		"RXNFETCH_UNKNOWN=x",
		"OTHER_URL=ignored",
	}
	over, err := EnvOverlay(env)
	if err != nil {
		t.Fatalf("EnvOverlay 错误: %v", err)
	}
	if over.URL != "https://mirror.example/u.zip" || len(over.Members) != 2 || over.Members[1] != "b.rsmi" {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	if over.WriteMode != "append" || over.RemoveArchive == nil || !*over.RemoveArchive || over.Timeout() != 30 {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	if over.Logging.Level != "warn" || over.Components.Extractor != "targz" {
		t.Fatalf("覆盖结果不正确: %+v", over)
	}
	if over.Options.Projector == nil || over.Options.Writer != nil {
		t.Fatalf("options 覆盖不正确: %+v", over.Options)
	}

	if _, err := EnvOverlay([]string{"RXNFETCH_REMOVE_ARCHIVE=maybe"}); err == nil {
		t.Fatalf("非法布尔值应报错")
	}
	if _, err := EnvOverlay([]string{"RXNFETCH_TIMEOUT_SECONDS=abc"}); err == nil {
		t.Fatalf("非法超时应报错")
	}
	if over, err := EnvOverlay([]string{"RXNFETCH_TIMEOUT_SECONDS="}); err != nil || over.TimeoutSeconds != nil {
		t.Fatalf("空超时视为未设置: %v %+v", err, over.TimeoutSeconds)
	}
	if _, err := EnvOverlay([]string{"RXNFETCH_OPTIONS__FETCHER_YAML=[unclosed"}); err == nil {
		t.Fatalf("非法 YAML 应报错")
	}
}

// 优先级：后者覆盖前者；空值不覆盖
func TestMergePrecedence(t *testing.T) {
	f := false
	base := Defaults()
	over := Config{DataDir: "d2", WriteMode: "APPEND", RemoveArchive: &f, Members: []string{"x.rsmi"}}
	got := Merge(base, over)
	if got.DataDir != "d2" || got.WriteMode != "append" || got.RemoveArchive == nil || *got.RemoveArchive {
		t.Fatalf("合并错误: %+v", got)
	}
	if got.URL != DefaultURL || got.OutputName != DefaultOutputName || len(got.Members) != 1 {
		t.Fatalf("未设置字段不应覆盖: %+v", got)
	}
	over.Members[0] = "mutated"
	if got.Members[0] != "x.rsmi" {
		t.Fatalf("Members 未复制")
	}
}

// 显式 0 覆盖低优先级来源的超时；nil 不覆盖
func TestMergeTimeout(t *testing.T) {
	thirty, zero := 30, 0
	base := Merge(Defaults(), Config{TimeoutSeconds: &thirty})
	if got := Merge(base, Config{}); got.Timeout() != 30 {
		t.Fatalf("nil 不应覆盖: %d", got.Timeout())
	}
	got := Merge(base, Config{TimeoutSeconds: &zero})
	if got.TimeoutSeconds == nil || got.Timeout() != 0 {
		t.Fatalf("显式 0 应覆盖: %+v", got.TimeoutSeconds)
	}
	zero = 7
	if got.Timeout() != 0 {
		t.Fatalf("TimeoutSeconds 未复制")
	}
}

// splitComma 与 atoi
func TestSplitCommaAtoi(t *testing.T) {
	parts := splitComma("a, b , ,c")
	if len(parts) != 3 || parts[1] != "b" {
		t.Fatalf("splitComma 结果错误: %v", parts)
	}
	if v, err := atoi(" 10 "); err != nil || v != 10 {
		t.Fatalf("atoi 失败: %v %d", err, v)
	}
	if _, err := atoi("x"); err == nil {
		t.Fatalf("atoi 应失败")
	}
}

// Validate 错误分支
func TestValidateErrors(t *testing.T) {
	if err := Validate(Config{}); err == nil {
		t.Fatal("空配置应失败")
	}
	cases := []struct {
		name string
		mut  func(*Config)
		is   error
	}{
		{"ftp url", func(c *Config) { c.URL = "ftp://host/x.zip" }, nil},
		{"relative url", func(c *Config) { c.URL = "files/1" }, nil},
		{"empty data dir", func(c *Config) { c.DataDir = " " }, nil},
		{"archive escape", func(c *Config) { c.ArchiveName = "../x.zip" }, contract.ErrPathInvalid},
		{"output abs", func(c *Config) { c.OutputName = "/tmp/out" }, contract.ErrPathInvalid},
		{"no members", func(c *Config) { c.Members = nil }, nil},
		{"member escape", func(c *Config) { c.Members = []string{"../../a"} }, contract.ErrPathInvalid},
		{"output is member", func(c *Config) { c.OutputName = "./" + DefaultMembers[0] }, nil},
		{"output is archive", func(c *Config) { c.OutputName = c.ArchiveName }, nil},
		{"bad mode", func(c *Config) { c.WriteMode = "merge" }, nil},
		{"neg timeout", func(c *Config) { n := -1; c.TimeoutSeconds = &n }, nil},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, nil},
		{"bad fetcher", func(c *Config) { c.Components.Fetcher = "ftp" }, nil},
		{"bad extractor", func(c *Config) { c.Components.Extractor = "rar" }, nil},
		{"bad writer", func(c *Config) { c.Components.Writer = "s3" }, nil},
	}
	for _, tc := range cases {
		cfg := DefaultTemplateConfig()
		tc.mut(&cfg)
		err := Validate(cfg)
		if err == nil {
			t.Fatalf("%s: 应失败", tc.name)
		}
		if tc.is != nil && !errors.Is(err, tc.is) {
			t.Fatalf("%s: 错误类型不符: %v", tc.name, err)
		}
	}
}

// 模板可直接装配；写出策略按组件区分
func TestAssembleTemplate(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.DataDir = t.TempDir()
	cfg.WriteMode = "append"
	comp, set, err := Assemble(cfg)
	if err != nil {
		t.Fatalf("装配失败: %v", err)
	}
	if comp.Fetcher == nil || comp.Extractor == nil || comp.Reader == nil || comp.Projector == nil || comp.Counter == nil {
		t.Fatalf("组件缺失: %+v", comp)
	}
	if m := comp.Output.(*wfs.FS).Mode(); m != wfs.ModeAppend {
		t.Fatalf("输出写出策略错误: %s", m)
	}
	if m := comp.Archive.(*wfs.FS).Mode(); m != wfs.ModeOverwrite {
		t.Fatalf("归档写出策略应为 overwrite: %s", m)
	}
	if set.RemoveArchive || len(set.Members) != 2 || set.OutputName != DefaultOutputName {
		t.Fatalf("Settings 错误: %+v", set)
	}
}

func TestAssembleBadOptions(t *testing.T) {
	cfg := DefaultTemplateConfig()
	cfg.DataDir = t.TempDir()
	cfg.Options.Projector = mustNode("column: 0\nbogus: 1\n")
	if _, _, err := Assemble(cfg); err == nil {
		t.Fatalf("未知选项应失败")
	}
	if _, _, err := Assemble(Config{}); err == nil {
		t.Fatalf("空配置应失败")
	}
}

// 模板可回读（与 init-config 输出一致）
func TestTemplateRoundTrip(t *testing.T) {
	b, err := TemplateYAML()
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	cfg, err := LoadYAML("", b)
	if err != nil {
		t.Fatalf("回读失败: %v\n%s", err, b)
	}
	cfg.DataDir = t.TempDir()
	if _, _, err := Assemble(cfg); err != nil {
		t.Fatalf("模板装配失败: %v", err)
	}
}
