package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"rxnfetch/internal/diag"
	"rxnfetch/pkg/contract"
)

// - 严格顺序：fetch → extract → project/write → count；上一阶段成功才进入下一阶段。
// - 首错即止：任一阶段失败立即返回，后续阶段不执行，不输出计数。
// - 流式：投影结果经 io.Pipe 直接交给 Writer，不在内存中缓存整文件。
// - 不重试、不校验归档、不断点续传。

// Components 聚合运行所需的原子组件。
type Components struct {
	Fetcher   contract.Fetcher
	Extractor contract.Extractor
	Reader    contract.Reader
	Projector contract.Projector
	// Archive 总是覆盖写（归档落盘）；Output 按写出策略写合并结果。
	Archive contract.Writer
	Output  contract.Writer
	Counter contract.Counter
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	URL         string
	DataDir     string
	ArchiveName string
	// Members 按给定顺序投影；路径相对 DataDir。
	Members       []string
	OutputName    string
	RemoveArchive bool
}

// MemberRows 记录单个成员文件贡献的行数。
type MemberRows struct {
	FileID contract.FileID
	Rows   int64
}

// Report 单次运行摘要。
type Report struct {
	ArchivePath  string
	ArchiveBytes int64
	Extracted    []contract.FileID
	Members      []MemberRows
	OutputPath   string
	// Count 为合并文件的行数（换行符计数），即最终打印的数值。
	Count int64
}

// Rows 返回所有成员投影出的行数之和。
func (r Report) Rows() int64 {
	var n int64
	for _, m := range r.Members {
		n += m.Rows
	}
	return n
}

// Run 执行完整流水线。返回的 Report 在出错时只包含已完成阶段的信息。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (rep Report, err error) {
	if err := sanity(comp, set); err != nil {
		return rep, fmt.Errorf("sanity: %w", err)
	}
	term := diag.GetTerminal()
	term.RunStart(set.URL, set.DataDir)
	runStart := time.Now()
	defer func() {
		term.RunFinish(err == nil, time.Since(runStart))
		logger.DebugStart("pipeline", "metrics", "", diag.SnapshotKV())
	}()

	if err := os.MkdirAll(set.DataDir, 0o755); err != nil {
		return rep, fmt.Errorf("data dir: %w", err)
	}
	if rep.ArchivePath, err = locate(comp.Archive, set.DataDir, set.ArchiveName); err != nil {
		return rep, fmt.Errorf("archive path: %w", err)
	}
	if rep.OutputPath, err = locate(comp.Output, set.DataDir, set.OutputName); err != nil {
		return rep, fmt.Errorf("output path: %w", err)
	}
	members := make([]string, 0, len(set.Members))
	for _, m := range set.Members {
		p, err := contract.SafeJoin(set.DataDir, m)
		if err != nil {
			return rep, fmt.Errorf("member %q: %w", m, err)
		}
		members = append(members, p)
	}

	// 写出策略拒绝时不下载、不解包
	if p, ok := comp.Output.(contract.Preflighter); ok {
		if err := p.Preflight(contract.ArtifactID(set.OutputName)); err != nil {
			logger.ErrorWith("writer", string(diag.Classify(err)), "preflight failed", nil, rep.OutputPath)
			diag.IncOp("writer", "preflight", "error")
			return rep, fmt.Errorf("preflight: %w", err)
		}
	}

	// 1) fetch：响应体直接流入 Archive Writer（原子替换，中断不留半截归档）
	err = runStage(logger, "fetcher", "fetch", set.URL, func() (int64, string, error) {
		body, err := comp.Fetcher.Fetch(ctx, set.URL)
		if err != nil {
			return 0, "", err
		}
		defer body.Close()
		cr := &countingReader{r: body, progress: term.StageProgress}
		if err := comp.Archive.Write(ctx, contract.ArtifactID(set.ArchiveName), cr); err != nil {
			return cr.n, "", err
		}
		rep.ArchiveBytes = cr.n
		return cr.n, fmt.Sprintf("%s | %d bytes", rep.ArchivePath, cr.n), nil
	})
	if err != nil {
		return rep, err
	}

	// 2) extract
	err = runStage(logger, "extractor", "extract", rep.ArchivePath, func() (int64, string, error) {
		ids, err := comp.Extractor.Extract(ctx, rep.ArchivePath, set.DataDir)
		rep.Extracted = ids
		if err != nil {
			return int64(len(ids)), "", err
		}
		return int64(len(ids)), fmt.Sprintf("%d files", len(ids)), nil
	})
	if err != nil {
		return rep, err
	}
	if set.RemoveArchive {
		if rerr := os.Remove(rep.ArchivePath); rerr != nil && !os.IsNotExist(rerr) {
			logger.Warn("extractor", "remove archive failed", map[string]string{"path": rep.ArchivePath, "err": rerr.Error()})
		}
	}

	// 3) project → write：先确认全部成员存在，避免 append 策略下写入半批
	err = runStage(logger, "projector", "project", set.OutputName, func() (int64, string, error) {
		for i, p := range members {
			st, err := os.Stat(p)
			if err != nil || st.IsDir() {
				return 0, "", fmt.Errorf("%w: %s", contract.ErrMemberMissing, set.Members[i])
			}
		}
		rows, err := project(ctx, comp, members, contract.ArtifactID(set.OutputName), logger)
		rep.Members = rows
		if err != nil {
			return rep.Rows(), "", err
		}
		return rep.Rows(), fmt.Sprintf("%s | %d rows", rep.OutputPath, rep.Rows()), nil
	})
	if err != nil {
		return rep, err
	}

	// 4) count
	err = runStage(logger, "counter", "count", rep.OutputPath, func() (int64, string, error) {
		n, err := comp.Counter.Count(ctx, rep.OutputPath)
		if err != nil {
			return 0, "", err
		}
		rep.Count = n
		return n, fmt.Sprintf("%d lines", n), nil
	})
	return rep, err
}

// project 在生产者 goroutine 中依次投影成员并写入管道，Output Writer 在另一侧消费。
// 两侧任一失败都会关闭管道使另一侧解除阻塞；Wait 返回后不留 goroutine。
func project(ctx context.Context, comp Components, members []string, out contract.ArtifactID, logger *diag.Logger) ([]MemberRows, error) {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var rows []MemberRows
	g.Go(func() error {
		bw := bufio.NewWriterSize(pw, 64*1024)
		err := comp.Reader.Iterate(gctx, members, func(id contract.FileID, rc io.ReadCloser) error {
			defer rc.Close()
			timer := logger.StartWith("projector", "member", string(id))
			n, err := comp.Projector.Project(gctx, id, rc, bw)
			if err != nil {
				return fmt.Errorf("project %s: %w", id, err)
			}
			timer.Finish("member", n)
			rows = append(rows, MemberRows{FileID: id, Rows: n})
			return nil
		})
		if err == nil {
			err = bw.Flush()
		}
		// err 为 nil 时读端得到 EOF
		_ = pw.CloseWithError(err)
		return err
	})

	var writeErr error
	g.Go(func() error {
		writeErr = comp.Output.Write(gctx, out, pr)
		_ = pr.CloseWithError(writeErr)
		return writeErr
	})

	err := g.Wait()
	if writeErr != nil {
		// Writer 先失败时生产者只会看到 ErrClosedPipe 之类的次生错误
		return rows, fmt.Errorf("write: %w", writeErr)
	}
	return rows, err
}

// runStage 包裹单个阶段：事件日志、指标、终端提示与错误分类。
func runStage(logger *diag.Logger, comp, stage, fileID string, fn func() (int64, string, error)) error {
	term := diag.GetTerminal()
	term.StageStart(stage)
	timer := logger.StartWith(comp, stage, fileID)
	t0 := time.Now()
	n, detail, err := fn()
	dur := time.Since(t0)
	diag.ObserveDuration(comp, stage, dur.Milliseconds())
	if err != nil {
		code := diag.Classify(err)
		kv := map[string]string{"err": err.Error()}
		var ue contract.UpstreamError
		if errors.As(err, &ue) {
			kv["status"] = fmt.Sprintf("%d", ue.UpstreamStatus())
		}
		logger.ErrorWithKV(comp, string(code), stage+" failed", &t0, fileID, kv)
		diag.IncOp(comp, stage, "error")
		if code != diag.CodeUnknown {
			diag.IncError(comp, string(code))
		}
		term.StageFinish(false, dur, err.Error())
		return fmt.Errorf("%s: %w", stage, err)
	}
	timer.Finish(stage, n)
	diag.IncOp(comp, stage, "success")
	term.StageFinish(true, dur, detail)
	return nil
}

func locate(w contract.Writer, root, name string) (string, error) {
	if l, ok := w.(contract.Locator); ok {
		return l.Locate(contract.ArtifactID(name))
	}
	return contract.SafeJoin(root, name)
}

func sanity(c Components, s Settings) error {
	if c.Fetcher == nil || c.Extractor == nil || c.Reader == nil || c.Projector == nil || c.Archive == nil || c.Output == nil || c.Counter == nil {
		return errors.New("pipeline: missing components")
	}
	if s.URL == "" || s.DataDir == "" || s.ArchiveName == "" || s.OutputName == "" {
		return fmt.Errorf("pipeline: %w: url, data_dir, archive_name and output_name are required", contract.ErrInvalidInput)
	}
	if len(s.Members) == 0 {
		return fmt.Errorf("pipeline: %w: no members", contract.ErrInvalidInput)
	}
	return nil
}

// countingReader 统计已读字节并上报进度（终端节流由 Terminal 负责）。
type countingReader struct {
	r        io.Reader
	n        int64
	progress func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	k, err := c.r.Read(p)
	c.n += int64(k)
	if c.progress != nil && k > 0 {
		c.progress(c.n)
	}
	return k, err
}
