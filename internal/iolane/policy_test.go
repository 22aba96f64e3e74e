package iolane

import "testing"

func TestDecide_LaneMatrix(t *testing.T) {
	config := PolicyConfig{
		Enabled:         true,
		RingAvailable:   true,
		MaxQueueDepth:   8,
		AllowFilesystem: true,
		AllowNetwork:    true,
	}

	tests := []struct {
		name   string
		input  Input
		wantLn Lane
		wantRs Reason
	}{
		{
			name:   "network io-heavy under budget",
			input:  Input{CapabilityClass: CapabilityNetwork, IOHint: IOHintIOHeavy, QueueDepth: 3},
			wantLn: LaneIoUring,
			wantRs: ReasonNone,
		},
		{
			name:   "kill switch wins regardless of other fields",
			input:  Input{CapabilityClass: CapabilityFilesystem, IOHint: IOHintIOHeavy, QueueDepth: 0, ForceCompatLane: true},
			wantLn: LaneCompat,
			wantRs: ReasonCompatKillSwitch,
		},
		{
			name:   "unsupported capability",
			input:  Input{CapabilityClass: CapabilitySession, IOHint: IOHintIOHeavy, QueueDepth: 0},
			wantLn: LaneFast,
			wantRs: ReasonUnsupportedCapability,
		},
		{
			name:   "queue depth at budget",
			input:  Input{CapabilityClass: CapabilityFilesystem, IOHint: IOHintIOHeavy, QueueDepth: 8},
			wantLn: LaneFast,
			wantRs: ReasonQueueDepthBudgetExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(config, tt.input)
			if got.Lane != tt.wantLn || got.FallbackReason != tt.wantRs {
				t.Errorf("Decide() = %+v, want lane=%s reason=%s", got, tt.wantLn, tt.wantRs)
			}
		})
	}
}

func TestDecideWithTelemetry_QueueDepthBudgetSaturatesAtZero(t *testing.T) {
	config := PolicyConfig{
		Enabled:         true,
		RingAvailable:   true,
		MaxQueueDepth:   8,
		AllowFilesystem: true,
	}
	input := Input{CapabilityClass: CapabilityFilesystem, IOHint: IOHintIOHeavy, QueueDepth: 11}

	tel := DecideWithTelemetry(config, input)
	if tel.QueueDepthBudgetRemaining != 0 {
		t.Errorf("QueueDepthBudgetRemaining = %d, want 0", tel.QueueDepthBudgetRemaining)
	}
}

func TestDecide_Total(t *testing.T) {
	// Every combination of the boolean/enum axes must produce a decision
	// without panicking, i.e. Decide is total.
	configs := []PolicyConfig{
		{}, // zero value
		{Enabled: true, RingAvailable: true, MaxQueueDepth: 1, AllowFilesystem: true, AllowNetwork: true},
	}
	classes := []CapabilityClass{CapabilityFilesystem, CapabilityNetwork, CapabilitySession, CapabilityOther}
	hints := []IOHint{IOHintUnknown, IOHintIOHeavy, IOHintCPUBound}

	for _, c := range configs {
		for _, class := range classes {
			for _, hint := range hints {
				for _, kill := range []bool{false, true} {
					got := Decide(c, Input{CapabilityClass: class, IOHint: hint, ForceCompatLane: kill})
					if got.Lane == "" {
						t.Fatalf("Decide returned empty lane for config=%+v class=%s hint=%s kill=%v", c, class, hint, kill)
					}
				}
			}
		}
	}
}
