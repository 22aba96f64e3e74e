package core

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"charm.land/fantasy"
)

func callFind(t *testing.T, workDir string, args findArgs) fantasy.ToolResponse {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	resp, err := executeFind(context.Background(), fantasy.ToolCall{Input: string(b)}, workDir)
	if err != nil {
		t.Fatalf("executeFind() error = %v", err)
	}
	return resp
}

func TestFind_MatchesGlobPattern(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "a.ts", "")
	mustWriteFile(t, dir, "b.json", "")

	resp := callFind(t, dir, findArgs{Pattern: "*.ts", Path: dir})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "a.ts") {
		t.Errorf("content = %q, want it to list a.ts", resp.Content)
	}
	if strings.Contains(resp.Content, "b.json") {
		t.Errorf("content = %q, want it to exclude non-matching files", resp.Content)
	}
}

func TestFind_NoMatchesReportsExactText(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "a.ts", "")

	resp := callFind(t, dir, findArgs{Pattern: "*.zzz-nope", Path: dir})
	if resp.IsError {
		t.Fatalf("'no files found' is not an error condition")
	}
	if resp.Content != "No files found" {
		t.Errorf("content = %q, want exact %q", resp.Content, "No files found")
	}
}

func TestFind_ResultLimitReached(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		mustWriteFile(t, dir, string(rune('a'+i))+".ts", "")
	}

	resp := callFind(t, dir, findArgs{Pattern: "*.ts", Path: dir, Limit: 2})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, `"resultLimitReached":true`) {
		t.Errorf("content = %q, want resultLimitReached in details", resp.Content)
	}
}

func TestFind_PatternRequired(t *testing.T) {
	dir := t.TempDir()
	resp := callFind(t, dir, findArgs{Path: dir})
	if !resp.IsError {
		t.Fatalf("expected error response when pattern is missing")
	}
}
