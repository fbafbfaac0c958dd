package registry

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"rxnfetch/pkg/contract"
	cln "rxnfetch/plugins/counter/lines"
	"rxnfetch/plugins/extractor"
	xauto "rxnfetch/plugins/extractor/auto"
	xtgz "rxnfetch/plugins/extractor/targz"
	xzip "rxnfetch/plugins/extractor/zip"
	fhttp "rxnfetch/plugins/fetcher/httpget"
	ptsv "rxnfetch/plugins/projector/tsv"
	rfs "rxnfetch/plugins/reader/filesystem"
	wfs "rxnfetch/plugins/writer/filesystem"
)

// Env 为工厂提供运行级默认值（组件选项未显式给出时使用）。
type Env struct {
	DataDir        string
	WriteMode      string
	TimeoutSeconds int
}

// strictDecode: 以 KnownFields 严格解码 YAML 子树，拒绝未知字段。
func strictDecode(raw *yaml.Node, v any) error {
	if raw == nil || raw.Kind == 0 {
		// 保持零值（默认选项）
		return nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NewFetcher 工厂签名：接收原样 YAML 选项子树。
type NewFetcher func(raw *yaml.Node, env Env) (contract.Fetcher, error)

// NewExtractor 工厂签名。
type NewExtractor func(raw *yaml.Node, env Env) (contract.Extractor, error)

// NewReader 工厂签名。
type NewReader func(raw *yaml.Node, env Env) (contract.Reader, error)

// NewProjector 工厂签名。
type NewProjector func(raw *yaml.Node, env Env) (contract.Projector, error)

// NewWriter 工厂签名。
type NewWriter func(raw *yaml.Node, env Env) (contract.Writer, error)

// NewCounter 工厂签名。
type NewCounter func(raw *yaml.Node, env Env) (contract.Counter, error)

// Fetcher 工厂注册表（显式、零反射）。
var Fetcher = map[string]NewFetcher{
	// http: 单次 GET，无重试
	"http": func(raw *yaml.Node, env Env) (contract.Fetcher, error) {
		var opts fhttp.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		if opts.TimeoutSeconds == 0 {
			opts.TimeoutSeconds = env.TimeoutSeconds
		}
		return fhttp.New(&opts)
	},
}

func extractorOptions(raw *yaml.Node) (*extractor.Options, error) {
	var opts extractor.Options
	if err := strictDecode(raw, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Extractor 工厂注册表。
var Extractor = map[string]NewExtractor{
	"zip": func(raw *yaml.Node, _ Env) (contract.Extractor, error) {
		opts, err := extractorOptions(raw)
		if err != nil {
			return nil, err
		}
		return xzip.New(opts), nil
	},
	"targz": func(raw *yaml.Node, _ Env) (contract.Extractor, error) {
		opts, err := extractorOptions(raw)
		if err != nil {
			return nil, err
		}
		return xtgz.New(opts), nil
	},
	// auto: 按归档文件名后缀选择 zip/targz
	"auto": func(raw *yaml.Node, _ Env) (contract.Extractor, error) {
		opts, err := extractorOptions(raw)
		if err != nil {
			return nil, err
		}
		return xauto.New(opts), nil
	},
}

// Reader 工厂注册表。
var Reader = map[string]NewReader{
	// fs: 文件系统 Reader（成员文件或目录）
	"fs": func(raw *yaml.Node, _ Env) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Projector 工厂注册表。
var Projector = map[string]NewProjector{
	// tsv: 分隔符列投影（默认第一列、跳过表头）
	"tsv": func(raw *yaml.Node, _ Env) (contract.Projector, error) {
		var opts ptsv.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return ptsv.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（overwrite|error|append）
	"fs": func(raw *yaml.Node, env Env) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		if strings.TrimSpace(opts.OutputDir) == "" {
			opts.OutputDir = env.DataDir
		}
		if strings.TrimSpace(opts.Mode) == "" {
			opts.Mode = env.WriteMode
		}
		return wfs.New(&opts)
	},
}

// Counter 工厂注册表。
var Counter = map[string]NewCounter{
	// lines: 换行符计数（wc -l 规则）
	"lines": func(raw *yaml.Node, _ Env) (contract.Counter, error) {
		var opts cln.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return cln.New(&opts), nil
	},
}
