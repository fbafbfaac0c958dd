//go:build !windows

package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"rxnfetch/pkg/contract"
)

// TestWalkDirNonRegular 非常规文件被忽略（mkfifo 仅 Unix）
func TestWalkDirNonRegular(t *testing.T) {
	root := t.TempDir()
	if err := syscall.Mkfifo(filepath.Join(root, "fifo.rsmi"), 0o644); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}
	ids, _, err := collect(t, New(nil), []string{root})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("non-regular should skip, visited %#v", ids)
	}
}

// TestIterateSymlink 指向常规文件的符号链接被读取
func TestIterateSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "t.rsmi")
	os.WriteFile(target, []byte("ok"), 0o644)
	link := filepath.Join(dir, "l.rsmi")
	os.Symlink(target, link)
	ids, got, err := collect(t, New(nil), []string{link})
	if err != nil || got != "ok" || len(ids) != 1 || !strings.Contains(ids[0], "l.rsmi") {
		t.Fatalf("symlink not visited: %v %#v %q", err, ids, got)
	}
}

// TestIterateSymlinkDir 符号链接指向目录时忽略
func TestIterateSymlinkDir(t *testing.T) {
	root := t.TempDir()
	realDir := filepath.Join(root, "real")
	os.Mkdir(realDir, 0o755)
	os.WriteFile(filepath.Join(realDir, "a.rsmi"), []byte("x"), 0o644)
	link := filepath.Join(root, "ln")
	os.Symlink(realDir, link)
	ids, _, err := collect(t, New(nil), []string{link})
	if err != nil || len(ids) != 0 {
		t.Fatalf("dir symlink visited: %v %#v", err, ids)
	}
}

// TestWalkDirSymlinkDir 遍历目录时忽略指向目录的符号链接
func TestWalkDirSymlinkDir(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	os.Mkdir(sub, 0o755)
	os.WriteFile(filepath.Join(sub, "ok.rsmi"), []byte("o"), 0o644)
	os.Symlink(sub, filepath.Join(root, "sub_link"))
	var files []string
	err := New(nil).Iterate(context.Background(), []string{root}, func(id contract.FileID, rc io.ReadCloser) error {
		files = append(files, filepath.Base(string(id)))
		return rc.Close()
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(files) != 1 || files[0] != "ok.rsmi" {
		t.Fatalf("unexpected files %#v", files)
	}
}

// TestIterateSymlinkDangling 符号链接失效返回错误
func TestIterateSymlinkDangling(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	os.Symlink(filepath.Join(dir, "no"), link)
	err := New(nil).Iterate(context.Background(), []string{link}, func(contract.FileID, io.ReadCloser) error { return nil })
	if err == nil {
		t.Fatalf("expect error for dangling symlink")
	}
}
