package file

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestCopyAtomicWritesAndCounts(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "001.jpg")
	n, err := CopyAtomic(dest, strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if n != int64(len("image-bytes")) {
		t.Fatalf("expected %d bytes, got %d", len("image-bytes"), n)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "image-bytes" {
		t.Fatalf("unexpected content %q err=%v", got, err)
	}
}

func TestCopyAtomicLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "002.jpg")
	if _, err := CopyAtomic(dest, failingReader{}); err == nil {
		t.Fatalf("expected copy error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir after failed copy, got %d entries", len(entries))
	}
}

func TestWriteJSONAtomicOverwrites(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "status.json")
	if err := WriteJSONAtomic(dest, map[string]string{"state": "resolving"}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteJSONAtomic(dest, map[string]string{"state": "done"}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	raw, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["state"] != "done" {
		t.Fatalf("expected latest state, got %v", got)
	}
}

func TestWriteJSONAtomicEncodeErrorKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "status.json")
	if err := WriteJSONAtomic(dest, map[string]string{"state": "done"}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteJSONAtomic(dest, map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatalf("expected encode error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only status.json, got %d entries", len(entries))
	}
	raw, _ := os.ReadFile(dest)
	if !strings.Contains(string(raw), "done") {
		t.Fatalf("previous content lost: %q", raw)
	}
}

func TestRemoveIfExistsMissing(t *testing.T) {
	if err := RemoveIfExists(filepath.Join(t.TempDir(), "nope.pdf")); err != nil {
		t.Fatalf("expected nil for missing file, got %v", err)
	}
}
