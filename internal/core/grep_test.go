package core

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"charm.land/fantasy"
)

func callGrep(t *testing.T, workDir string, args grepArgs) fantasy.ToolResponse {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	resp, err := executeGrep(context.Background(), fantasy.ToolCall{Input: string(b)}, workDir)
	if err != nil {
		t.Fatalf("executeGrep() error = %v", err)
	}
	return resp
}

func TestGrep_FindsMatchingLines(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "f.txt", "alpha\nneedle here\nbeta\n")

	resp := callGrep(t, dir, grepArgs{Pattern: "needle", Path: dir})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "needle here") {
		t.Errorf("content = %q, want the matching line", resp.Content)
	}
}

func TestGrep_NoMatchesReportsExactText(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "f.txt", "alpha\nbeta\n")

	resp := callGrep(t, dir, grepArgs{Pattern: "zzz-nope-zzz", Path: dir})
	if resp.IsError {
		t.Fatalf("'no matches' is not an error condition")
	}
	if resp.Content != "No matches found" {
		t.Errorf("content = %q, want exact %q", resp.Content, "No matches found")
	}
}

func TestGrep_InvalidRegexErrors(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "f.txt", "alpha\n")

	resp := callGrep(t, dir, grepArgs{Pattern: "(unclosed", Path: dir})
	if !resp.IsError {
		t.Fatalf("expected error response for invalid regex")
	}
}

func TestGrep_LongLinesTruncatedWithMarker(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("x", grepMaxLineLen+50)
	mustWriteFile(t, dir, "f.txt", "needle"+long+"\n")

	resp := callGrep(t, dir, grepArgs{Pattern: "needle", Path: dir})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "[truncated]") {
		t.Errorf("content = %q, want a [truncated] marker on the long line", tail(resp.Content))
	}
	if !strings.Contains(resp.Content, `"linesTruncated":true`) {
		t.Errorf("content = %q, want linesTruncated in details", tail(resp.Content))
	}
}
