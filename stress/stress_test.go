package stress

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	kzip "github.com/klauspost/compress/zip"

	cfgpkg "rxnfetch/internal/config"
	"rxnfetch/internal/pipeline"
)

// baseConfig 构造指向本地 httptest 的最小可运行配置。
func baseConfig(url, dataDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.URL = url
	cfg.DataDir = dataDir
	cfg.Logging.Level = "error"
	return cfg
}

// runPipeline 执行完整流水线。
func runPipeline(cfg cfgpkg.Config) (pipeline.Report, error) {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return pipeline.Report{}, err
	}
	return pipeline.Run(context.Background(), comp, set, nil)
}

// synthMember 生成带表头的 n 行反应数据。
func synthMember(n int, year int) []byte {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	_, _ = w.WriteString("ReactionSmiles\tPatentNumber\tParagraphNum\tYear\tTextMinedYield\tCalculatedYield\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, "C%d(=O)O.OCC>>CC(=O)OCC%d\tUS%08d\t%d\t%d\t\t\n", i%97, i, i, i%31, year)
	}
	_ = w.Flush()
	return buf.Bytes()
}

// TestStress 在不同数据规模下运行流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	sizes := []int{1_000, 50_000, 200_000}
	for _, rows := range sizes {
		t.Run(fmt.Sprintf("rows_%d", rows), func(t *testing.T) {
			var zbuf bytes.Buffer
			zw := kzip.NewWriter(&zbuf)
			for i, name := range cfgpkg.DefaultMembers {
				w, err := zw.Create(name)
				if err != nil {
					t.Fatalf("zip create: %v", err)
				}
				if _, err := w.Write(synthMember(rows/2, 1976+25*i)); err != nil {
					t.Fatalf("zip write: %v", err)
				}
			}
			if err := zw.Close(); err != nil {
				t.Fatalf("zip close: %v", err)
			}
			body := zbuf.Bytes()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(body)
			}))
			defer srv.Close()

			const runs = 5
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				dataDir := t.TempDir()
				start := time.Now()
				rep, err := runPipeline(baseConfig(srv.URL, dataDir))
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				if want := int64(rows/2) * 2; rep.Count != want {
					t.Errorf("run %d: count=%d want %d", i, rep.Count, want)
					continue
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			t.Logf("行数%d 成功率%.2f 平均%v 95%%延迟%v", rows, float64(successes)/float64(runs), avg, latencies[idx])
		})
	}
}
