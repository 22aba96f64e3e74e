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

func callLs(t *testing.T, workDir string, args lsArgs) fantasy.ToolResponse {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	resp, err := executeLs(context.Background(), fantasy.ToolCall{Input: string(b)}, workDir)
	if err != nil {
		t.Fatalf("executeLs() error = %v", err)
	}
	return resp
}

func TestLs_DirectoriesGetTrailingSlash(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "file.txt", "")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	resp := callLs(t, dir, lsArgs{Path: dir})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "sub/") {
		t.Errorf("content = %q, want sub/ with trailing slash", resp.Content)
	}
	if !strings.Contains(resp.Content, "file.txt") {
		t.Errorf("content = %q, want file.txt listed", resp.Content)
	}
}

func TestLs_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	resp := callLs(t, dir, lsArgs{Path: dir})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if resp.Content != "empty directory" {
		t.Errorf("content = %q, want exact %q", resp.Content, "empty directory")
	}
}

func TestLs_NonexistentPathErrors(t *testing.T) {
	dir := t.TempDir()
	resp := callLs(t, dir, lsArgs{Path: filepath.Join(dir, "nope")})
	if !resp.IsError {
		t.Fatalf("expected error response for nonexistent path")
	}
	if resp.Content != "Path not found" {
		t.Errorf("content = %q, want exact %q", resp.Content, "Path not found")
	}
}

func TestLs_FilePathErrors(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "file.txt", "x")

	resp := callLs(t, dir, lsArgs{Path: path})
	if !resp.IsError {
		t.Fatalf("expected error response for a file path")
	}
	if resp.Content != "Not a directory" {
		t.Errorf("content = %q, want exact %q", resp.Content, "Not a directory")
	}
}

func TestLs_EntryLimitReached(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		mustWriteFile(t, dir, string(rune('a'+i))+".txt", "")
	}

	resp := callLs(t, dir, lsArgs{Path: dir, Limit: 2})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, `"entryLimitReached":true`) {
		t.Errorf("content = %q, want entryLimitReached in details", resp.Content)
	}
}
