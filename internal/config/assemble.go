package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"rxnfetch/internal/pipeline"
	"rxnfetch/pkg/contract"
	"rxnfetch/pkg/registry"
	wfs "rxnfetch/plugins/writer/filesystem"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if cfg.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: url must be an absolute http(s) URL, got %q", cfg.URL)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("config: data_dir empty")
	}
	if _, err := contract.SafeJoin(cfg.DataDir, cfg.ArchiveName); err != nil {
		return fmt.Errorf("config: archive_name %q: %w", cfg.ArchiveName, err)
	}
	if _, err := contract.SafeJoin(cfg.DataDir, cfg.OutputName); err != nil {
		return fmt.Errorf("config: output_name %q: %w", cfg.OutputName, err)
	}
	if len(cfg.Members) == 0 {
		return errors.New("config: members empty")
	}
	out := contract.NormalizeFileID(cfg.OutputName)
	if out == contract.NormalizeFileID(cfg.ArchiveName) {
		return errors.New("config: output_name must differ from archive_name")
	}
	for _, m := range cfg.Members {
		if _, err := contract.SafeJoin(cfg.DataDir, m); err != nil {
			return fmt.Errorf("config: member %q: %w", m, err)
		}
		// 输出与成员同名会在投影时覆盖输入
		if contract.NormalizeFileID(m) == out {
			return fmt.Errorf("config: output_name %q collides with a member", cfg.OutputName)
		}
	}
	switch strings.ToLower(cfg.WriteMode) {
	case "", wfs.ModeOverwrite, wfs.ModeError, wfs.ModeAppend:
	default:
		return fmt.Errorf("config: write_mode %q not one of overwrite|error|append", cfg.WriteMode)
	}
	if cfg.Timeout() < 0 {
		return errors.New("config: timeout_seconds must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q not one of debug|info|warn|error", cfg.Logging.Level)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。
	d := Defaults().Components
	if name := effName(cfg.Components.Fetcher, d.Fetcher); registry.Fetcher[name] == nil {
		return fmt.Errorf("config: fetcher %q not registered", name)
	}
	if name := effName(cfg.Components.Extractor, d.Extractor); registry.Extractor[name] == nil {
		return fmt.Errorf("config: extractor %q not registered", name)
	}
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Projector, d.Projector); registry.Projector[name] == nil {
		return fmt.Errorf("config: projector %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := effName(cfg.Components.Counter, d.Counter); registry.Counter[name] == nil {
		return fmt.Errorf("config: counter %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传原样 YAML 子树。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults().Components
	mode := effName(strings.ToLower(cfg.WriteMode), DefaultWriteMode)
	env := registry.Env{DataDir: cfg.DataDir, WriteMode: mode, TimeoutSeconds: cfg.Timeout()}

	fail := func(comp string, err error) (pipeline.Components, pipeline.Settings, error) {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: %s options: %w", comp, err)
	}

	f, err := registry.Fetcher[effName(cfg.Components.Fetcher, d.Fetcher)](cfg.Options.Fetcher, env)
	if err != nil {
		return fail("fetcher", err)
	}
	x, err := registry.Extractor[effName(cfg.Components.Extractor, d.Extractor)](cfg.Options.Extractor, env)
	if err != nil {
		return fail("extractor", err)
	}
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader, env)
	if err != nil {
		return fail("reader", err)
	}
	p, err := registry.Projector[effName(cfg.Components.Projector, d.Projector)](cfg.Options.Projector, env)
	if err != nil {
		return fail("projector", err)
	}
	wn := effName(cfg.Components.Writer, d.Writer)
	out, err := registry.Writer[wn](cfg.Options.Writer, env)
	if err != nil {
		return fail("writer", err)
	}
	// 归档总是落在 data_dir 下并覆盖写，不受输出写出策略影响
	arc, err := registry.Writer[wn](nil, registry.Env{DataDir: cfg.DataDir, WriteMode: wfs.ModeOverwrite})
	if err != nil {
		return fail("writer", err)
	}
	c, err := registry.Counter[effName(cfg.Components.Counter, d.Counter)](cfg.Options.Counter, env)
	if err != nil {
		return fail("counter", err)
	}

	comp := pipeline.Components{
		Fetcher:   f,
		Extractor: x,
		Reader:    r,
		Projector: p,
		Archive:   arc,
		Output:    out,
		Counter:   c,
	}
	set := pipeline.Settings{
		URL:           strings.TrimSpace(cfg.URL),
		DataDir:       cfg.DataDir,
		ArchiveName:   cfg.ArchiveName,
		Members:       cloneStrings(cfg.Members),
		OutputName:    cfg.OutputName,
		RemoveArchive: cfg.RemoveArchive != nil && *cfg.RemoveArchive,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
