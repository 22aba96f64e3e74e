package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"charm.land/fantasy"
)

func callWrite(t *testing.T, workDir string, args writeArgs) fantasy.ToolResponse {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	resp, err := executeWrite(context.Background(), fantasy.ToolCall{Input: string(b)}, workDir)
	if err != nil {
		t.Fatalf("executeWrite() error = %v", err)
	}
	return resp
}

func TestWrite_CreatesFileAndParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "f.txt")

	resp := callWrite(t, dir, writeArgs{Path: path, Content: "hello"})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("file content = %q, want %q", got, "hello")
	}
}

func TestWrite_OverwritesSilently(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "f.txt", "old")

	resp := callWrite(t, dir, writeArgs{Path: path, Content: "new"})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("file content = %q, want %q", got, "new")
	}
}

func TestWrite_ReportsASCIIByteCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")

	resp := callWrite(t, dir, writeArgs{Path: path, Content: "hello"})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "Wrote 5 bytes to") {
		t.Errorf("content = %q, want it to report 5 bytes for ASCII content", resp.Content)
	}
}

// A surrogate-pair emoji is 1 rune, 4 UTF-8 bytes, and 2 UTF-16 code units.
// The byte count reported must reflect UTF-16 code units, not UTF-8 bytes or
// rune count, so this case distinguishes all three.
func TestWrite_ReportsUTF16CodeUnitCountForSurrogatePairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	content := "a😀b" // 'a' (1 unit) + U+1F600 (2 units) + 'b' (1 unit) = 4 units

	resp := callWrite(t, dir, writeArgs{Path: path, Content: content})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "Wrote 4 bytes to") {
		t.Errorf("content = %q, want it to report 4 UTF-16 code units", resp.Content)
	}
}
