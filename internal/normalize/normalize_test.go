package normalize

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNormalize_StabilityScenario(t *testing.T) {
	ctx := Context{Cwd: "/tmp/test_root"}
	raw := `{"b":1,"a":"saw /tmp/test_root/file.rs and run-550e8400-e29b-41d4-a716-446655440000 at http://127.0.0.1:4887/v1 then [31mERR[0m"}`

	records, err := Normalize(raw, ctx)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records[0]); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<WORKSPACE_ROOT>/file.rs",
		"<RUN_ID>",
		"http://127.0.0.1:<PORT>/v1",
		"ERR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("normalized output missing %q, got: %s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("ANSI sequence survived normalization: %s", out)
	}
	// keys alphabetized: "a" must serialize before "b".
	if strings.Index(out, `"a"`) > strings.Index(out, `"b"`) {
		t.Errorf("keys not alphabetized: %s", out)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	ctx := Context{Cwd: "/workspace", ProjectRoot: "/repo"}
	raw := `{"timestamp":"2026-01-01T00:00:00Z","pid":1234,"session_id":"abc","data":{"z":1,"a":2}}`

	once, err := Normalize(raw, ctx)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	onceJSON, err := json.Marshal(once[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	twice, err := Normalize(string(onceJSON), ctx)
	if err != nil {
		t.Fatalf("second Normalize() error = %v", err)
	}
	twiceJSON, err := json.Marshal(twice[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	if string(onceJSON) != string(twiceJSON) {
		t.Errorf("normalization not idempotent:\nfirst:  %s\nsecond: %s", onceJSON, twiceJSON)
	}
}

func TestNormalize_TimestampAndPidPlaceholders(t *testing.T) {
	raw := `{"timestamp":"2026-01-01T00:00:00Z","pid":4242}`
	records, err := Normalize(raw, Context{})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(records[0])
	out := buf.String()
	if !strings.Contains(out, `"pid":0`) {
		t.Errorf("pid not zeroed: %s", out)
	}
	if !strings.Contains(out, `"timestamp":"<TIMESTAMP>"`) {
		t.Errorf("timestamp not replaced: %s", out)
	}
}

func TestNormalize_MalformedLineFailsWithLineNumber(t *testing.T) {
	raw := "{\"a\":1}\n{not json}"
	_, err := Normalize(raw, Context{})
	if err == nil {
		t.Fatal("expected error for malformed JSON line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should reference line 2, got: %v", err)
	}
}
