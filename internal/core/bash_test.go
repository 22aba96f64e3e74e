package core

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"charm.land/fantasy"
)

func callBash(t *testing.T, workDir string, args bashArgs) fantasy.ToolResponse {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	resp, err := executeBash(context.Background(), fantasy.ToolCall{Input: string(b)}, workDir)
	if err != nil {
		t.Fatalf("executeBash() error = %v", err)
	}
	return resp
}

func TestBash_CapturesStdoutAndStderr(t *testing.T) {
	dir := t.TempDir()
	resp := callBash(t, dir, bashArgs{Command: "echo out; echo err 1>&2"})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "out") || !strings.Contains(resp.Content, "err") {
		t.Errorf("content = %q, want both stdout and stderr captured", resp.Content)
	}
}

func TestBash_NonZeroExitReportsCode(t *testing.T) {
	dir := t.TempDir()
	resp := callBash(t, dir, bashArgs{Command: "exit 3"})
	if !resp.IsError {
		t.Fatalf("expected error response for nonzero exit")
	}
	if !strings.Contains(resp.Content, "Command exited with code 3") {
		t.Errorf("content = %q, want exact exit code message", resp.Content)
	}
}

func TestBash_TimeoutReportsSeconds(t *testing.T) {
	dir := t.TempDir()
	resp := callBash(t, dir, bashArgs{Command: "sleep 5", Timeout: 0.2})
	if !resp.IsError {
		t.Fatalf("expected error response for timeout")
	}
	if resp.Content != "Command timed out after 0 seconds" {
		t.Errorf("content = %q, want exact timeout message", resp.Content)
	}
}

func TestBash_BannedCommandRejected(t *testing.T) {
	dir := t.TempDir()
	resp := callBash(t, dir, bashArgs{Command: "alias ls='ls -la'"})
	if !resp.IsError {
		t.Fatalf("expected error response for banned command")
	}
	if !strings.Contains(resp.Content, "is not allowed") {
		t.Errorf("content = %q, want it to say the command is not allowed", resp.Content)
	}
}

func TestBash_LargeOutputTruncatesWithFullOutputPath(t *testing.T) {
	dir := t.TempDir()
	resp := callBash(t, dir, bashArgs{Command: "for i in $(seq 1 3000); do echo line$i; done"})
	if resp.IsError {
		t.Fatalf("unexpected error: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "details:") {
		t.Errorf("content tail = %q, want truncation details attached", tail(resp.Content))
	}
	if !strings.Contains(resp.Content, `"fullOutputPath"`) {
		t.Errorf("content tail = %q, want fullOutputPath recorded", tail(resp.Content))
	}
	if !strings.Contains(resp.Content, "line3000") {
		t.Errorf("content tail = %q, want the tail of output (truncateTail keeps the end)", tail(resp.Content))
	}
	if strings.Contains(resp.Content, "line1\n") {
		t.Errorf("content should have dropped early lines when truncated by tail")
	}
}

func tail(s string) string {
	if len(s) <= 300 {
		return s
	}
	return s[len(s)-300:]
}
