package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicReplace_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicReplace(dir, "a.json", []byte("hello")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// replace 语义：二次写入覆盖。
	if err := WriteFileAtomicReplace(dir, "a.json", []byte("world")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "world" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomicNoOverwrite_ExistingFile(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicNoOverwrite(dir, "a.m4a", []byte("one")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	err := WriteFileAtomicNoOverwrite(dir, "a.m4a", []byte("two"))
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}

	b, _ := os.ReadFile(filepath.Join(dir, "a.m4a"))
	if string(b) != "one" {
		t.Fatalf("已有文件不应被覆盖：%q", string(b))
	}
}

func TestWriteFileAtomicNoOverwrite_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()

	// 目标路径是目录：应返回 PathTypeConflictError，而不是 os.ErrExist。
	if err := os.Mkdir(filepath.Join(dir, "a.txt"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := WriteFileAtomicNoOverwrite(dir, "a.txt", []byte("hello"))
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestWriteStreamAtomicNoOverwrite(t *testing.T) {
	dir := t.TempDir()

	n, err := WriteStreamAtomicNoOverwrite(dir, "audio.m4a", strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if n != int64(len("audio-bytes")) {
		t.Fatalf("期望写入 %d 字节，实际 %d", len("audio-bytes"), n)
	}

	b, err := os.ReadFile(filepath.Join(dir, "audio.m4a"))
	if err != nil || string(b) != "audio-bytes" {
		t.Fatalf("内容不一致：%q err=%v", b, err)
	}

	if _, err := WriteStreamAtomicNoOverwrite(dir, "audio.m4a", strings.NewReader("x")); !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
}

// failingReader 模拟拉流中途断开。
type failingReader struct{ n int }

func (r *failingReader) Read(b []byte) (int, error) {
	if r.n > 0 {
		r.n--
		return len(b), nil
	}
	return 0, errors.New("stream reset")
}

func TestWriteStreamAtomicNoOverwrite_StreamFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()

	if _, err := WriteStreamAtomicNoOverwrite(dir, "audio.m4a", &failingReader{n: 2}); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("失败后目录应为空，实际 %v", entries)
	}
}
