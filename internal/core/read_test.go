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

func mustWriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func callRead(t *testing.T, workDir string, args readArgs) fantasy.ToolResponse {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	resp, err := executeRead(context.Background(), fantasy.ToolCall{Input: string(b)}, ToolConfig{WorkDir: workDir})
	if err != nil {
		t.Fatalf("executeRead() error = %v", err)
	}
	return resp
}

func textOf(resp fantasy.ToolResponse) string {
	return resp.Content
}

func TestRead_LineNumbersUseFiveWidthArrowPrefix(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "f.txt", "alpha\nbeta\n")

	resp := callRead(t, dir, readArgs{Path: path})
	text := textOf(resp)

	if !strings.Contains(text, "    1→alpha") {
		t.Errorf("text = %q, want a line containing %q", text, "    1→alpha")
	}
	if !strings.Contains(text, "    2→beta") {
		t.Errorf("text = %q, want a line containing %q", text, "    2→beta")
	}
}

func TestRead_DirectoryErrors(t *testing.T) {
	dir := t.TempDir()
	resp := callRead(t, dir, readArgs{Path: dir})
	if !resp.IsError {
		t.Fatalf("expected error response for directory path")
	}
	if !strings.Contains(textOf(resp), "is a directory") {
		t.Errorf("text = %q, want it to mention the path is a directory", textOf(resp))
	}
}

func TestRead_OffsetBeyondEndOfFileErrors(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "f.txt", "one\ntwo\n")

	resp := callRead(t, dir, readArgs{Path: filepath.Join(dir, "f.txt"), Offset: 50})
	if !resp.IsError {
		t.Fatalf("expected error response for offset beyond EOF")
	}
	if textOf(resp) != "Offset 50 is beyond end of file" {
		t.Errorf("text = %q, want exact EOF message", textOf(resp))
	}
}

func TestRead_TruncatesByLinesWithExactNotice(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	totalLines := defaultMaxLines + 10
	for i := 1; i <= totalLines; i++ {
		b.WriteString("line\n")
	}
	mustWriteFile(t, dir, "big.txt", b.String())

	resp := callRead(t, dir, readArgs{Path: filepath.Join(dir, "big.txt")})
	text := textOf(resp)

	wantNotice := "Showing lines 1-2000 of 2010"
	if !strings.Contains(text, wantNotice) {
		t.Errorf("text missing %q, got tail: %q", wantNotice, text[max(0, len(text)-300):])
	}
	if !strings.Contains(text, "Use offset=2001 to continue.") {
		t.Errorf("text missing continuation notice, got tail: %q", text[max(0, len(text)-300):])
	}
	if !strings.Contains(text, `"truncatedBy":"lines"`) {
		t.Errorf("details missing truncatedBy=lines, got tail: %q", text[max(0, len(text)-300):])
	}
	if !strings.Contains(text, `"totalLines":2010`) {
		t.Errorf("details missing totalLines=2010, got tail: %q", text[max(0, len(text)-300):])
	}
}

func TestRead_ImagesBlockedByDefault(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, dir, "pic.png", "not really a png")

	resp := callRead(t, dir, readArgs{Path: filepath.Join(dir, "pic.png")})
	if !resp.IsError {
		t.Fatalf("expected error response for image path")
	}
	if textOf(resp) != "Images are blocked by configuration" {
		t.Errorf("text = %q, want exact image-blocked message", textOf(resp))
	}
}

func TestRead_ImagesAllowedWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "pic.png", "not really a png")

	b, err := json.Marshal(readArgs{Path: path})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	resp, err := executeRead(context.Background(), fantasy.ToolCall{Input: string(b)}, ToolConfig{WorkDir: dir, AllowImages: true})
	if err != nil {
		t.Fatalf("executeRead() error = %v", err)
	}
	if resp.IsError {
		t.Fatalf("expected success response when images are allowed, got error: %q", textOf(resp))
	}
}
