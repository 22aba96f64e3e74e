package diffgroup

import "testing"

func TestDiffKey_PriorityOrder(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		want   string
	}{
		{
			name: "tool_call_id wins over scenario_id",
			record: map[string]any{
				"event": "tool_call",
				"correlation": map[string]any{
					"tool_call_id": "tc-1",
					"scenario_id":  "scn-9",
				},
			},
			want: "tool_call::tool_call_id:tc-1",
		},
		{
			name: "falls back through priority list",
			record: map[string]any{
				"event": "rpc",
				"correlation": map[string]any{
					"rpc_id": "rpc-3",
				},
			},
			want: "rpc::rpc_id:rpc-3",
		},
		{
			name:   "missing correlation falls back to id:<missing>",
			record: map[string]any{"event": "noop"},
			want:   "noop::id:<missing>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DiffKey(tt.record); got != tt.want {
				t.Errorf("DiffKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompare_IdenticalStreamsSucceed(t *testing.T) {
	left := []map[string]any{
		{"event": "tool_call", "correlation": map[string]any{"tool_call_id": "tc-1"}, "data": "x"},
	}
	right := []map[string]any{
		{"event": "tool_call", "correlation": map[string]any{"tool_call_id": "tc-1"}, "data": "x"},
	}

	result, err := Compare(left, right)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if !result.OK {
		t.Errorf("Compare() OK = false for identical streams, diffs: %v", result.Diffs)
	}
}

func TestCompare_MismatchProducesDiff(t *testing.T) {
	left := []map[string]any{
		{"event": "tool_call", "correlation": map[string]any{"tool_call_id": "tc-1"}, "data": "before"},
	}
	right := []map[string]any{
		{"event": "tool_call", "correlation": map[string]any{"tool_call_id": "tc-1"}, "data": "after"},
	}

	result, err := Compare(left, right)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if result.OK {
		t.Fatal("Compare() OK = true for mismatched streams")
	}
	if _, ok := result.Diffs["tool_call::tool_call_id:tc-1"]; !ok {
		t.Errorf("expected a diff for key tool_call::tool_call_id:tc-1, got: %v", result.Diffs)
	}
}
