package harness

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspace_EventsAreAppendedInOrder(t *testing.T) {
	h, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ws, err := h.NewWorkspace("normalize/idempotence check")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}

	if err := ws.LogEvent("checkpoint", "first pass complete", map[string]any{"records": 12}); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	if err := ws.Finish(true, ""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	eventsPath := filepath.Join(filepath.Dir(ws.Dir), "events.jsonl")
	f, err := os.Open(eventsPath)
	if err != nil {
		t.Fatalf("open events.jsonl: %v", err)
	}
	defer f.Close()

	var kinds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal event line: %v", err)
		}
		if e.Schema != "pi.harness.test_event.v1" {
			t.Errorf("event schema = %q, want pi.harness.test_event.v1", e.Schema)
		}
		kinds = append(kinds, e.Kind)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan events.jsonl: %v", err)
	}

	want := []string{"started", "checkpoint", "passed"}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("event[%d].Kind = %q, want %q", i, kinds[i], k)
		}
	}
}

func TestWorkspace_FailedRecordsReason(t *testing.T) {
	h, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ws, err := h.NewWorkspace("edit tool exactness")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	if err := ws.Finish(false, "expected exact byte match, got diff"); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	eventsPath := filepath.Join(filepath.Dir(ws.Dir), "events.jsonl")
	data, err := os.ReadFile(eventsPath)
	if err != nil {
		t.Fatalf("read events.jsonl: %v", err)
	}

	var lastEvent Event
	lines := splitLines(data)
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &lastEvent); err != nil {
		t.Fatalf("unmarshal last event: %v", err)
	}
	if lastEvent.Kind != "failed" {
		t.Errorf("last event kind = %q, want failed", lastEvent.Kind)
	}
	if lastEvent.Fields["reason"] != "expected exact byte match, got diff" {
		t.Errorf("failure reason = %v, want the given reason", lastEvent.Fields["reason"])
	}
}

func TestWorkspace_CaptureArtifactCopiesFile(t *testing.T) {
	h, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ws, err := h.NewWorkspace("capture artifact")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}

	srcPath := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(srcPath, []byte(`{"schema":"pi.test.v1"}`), 0o644); err != nil {
		t.Fatalf("write source fixture: %v", err)
	}

	if err := ws.CaptureArtifact("report.json", srcPath); err != nil {
		t.Fatalf("CaptureArtifact() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(ws.ArtifactsDir, "report.json"))
	if err != nil {
		t.Fatalf("read captured artifact: %v", err)
	}
	if string(got) != `{"schema":"pi.test.v1"}` {
		t.Errorf("captured artifact content = %q", got)
	}
}

func TestNewWorkspace_SanitizesUnsafeTestNames(t *testing.T) {
	h, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ws, err := h.NewWorkspace("../../etc/passwd")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	if !filepath.IsAbs(ws.Dir) {
		t.Fatalf("workspace dir not absolute: %s", ws.Dir)
	}
	if filepath.Clean(ws.Dir) == "/etc/passwd" {
		t.Fatalf("workspace escaped base dir: %s", ws.Dir)
	}
}

func splitLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, string(data[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
