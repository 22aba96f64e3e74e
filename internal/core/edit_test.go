package core

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"charm.land/fantasy"
)

func callEdit(t *testing.T, workDir string, args editArgs) fantasy.ToolResponse {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	resp, err := executeEdit(context.Background(), fantasy.ToolCall{Input: string(b)}, workDir)
	if err != nil {
		t.Fatalf("executeEdit() error = %v", err)
	}
	return resp
}

func TestEdit_ReplacesSingleOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "f.txt", "hello world\n")

	resp := callEdit(t, dir, editArgs{Path: path, OldText: "world", NewText: "there"})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "hello there\n" {
		t.Errorf("file content = %q, want %q", got, "hello there\n")
	}
	if !strings.Contains(resp.Content, "details:") {
		t.Errorf("response = %q, want it to carry a details.diff payload", resp.Content)
	}
	if !strings.Contains(resp.Content, `"diff"`) {
		t.Errorf("response = %q, want a diff key in details", resp.Content)
	}
}

func TestEdit_ZeroOccurrencesErrors(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "f.txt", "hello world\n")

	resp := callEdit(t, dir, editArgs{Path: path, OldText: "nope", NewText: "x"})
	if !resp.IsError {
		t.Fatalf("expected error response for zero matches")
	}
	if !strings.Contains(resp.Content, "not found") {
		t.Errorf("content = %q, want it to mention old_text was not found", resp.Content)
	}
}

func TestEdit_MultipleOccurrencesErrors(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "f.txt", "dup\ndup\n")

	resp := callEdit(t, dir, editArgs{Path: path, OldText: "dup", NewText: "x"})
	if !resp.IsError {
		t.Fatalf("expected error response for multiple matches")
	}
	if !strings.Contains(resp.Content, "2 locations") {
		t.Errorf("content = %q, want it to report the match count", resp.Content)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "dup\ndup\n" {
		t.Errorf("file should be unmodified on error, got %q", got)
	}
}

func TestEdit_ReportsNewLineCount(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "f.txt", "one\ntwo\nthree\n")

	resp := callEdit(t, dir, editArgs{Path: path, OldText: "two", NewText: "two\nextra"})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "(5 lines)") {
		t.Errorf("content = %q, want it to report 5 lines", resp.Content)
	}
}
