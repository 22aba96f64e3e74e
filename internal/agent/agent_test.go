package agent

import (
	"math"
	"testing"

	"charm.land/fantasy"
)

func TestSumUsage_AddsEachField(t *testing.T) {
	a := fantasy.Usage{InputTokens: 10, OutputTokens: 20, CacheReadTokens: 5, CacheWriteTokens: 1}
	b := fantasy.Usage{InputTokens: 3, OutputTokens: 4, CacheReadTokens: 2, CacheWriteTokens: 1}

	got := sumUsage(a, b)
	want := fantasy.Usage{InputTokens: 13, OutputTokens: 24, CacheReadTokens: 7, CacheWriteTokens: 2}
	if got != want {
		t.Errorf("sumUsage() = %+v, want %+v", got, want)
	}
}

func TestSumUsage_SaturatesInsteadOfWrapping(t *testing.T) {
	a := fantasy.Usage{InputTokens: math.MaxInt64 - 1}
	b := fantasy.Usage{InputTokens: 10}

	got := sumUsage(a, b)
	if got.InputTokens != math.MaxInt64 {
		t.Errorf("InputTokens = %d, want saturated at %d", got.InputTokens, int64(math.MaxInt64))
	}
}

func TestSaturatingAdd(t *testing.T) {
	tests := []struct {
		x, y, want int64
	}{
		{0, 0, 0},
		{5, 7, 12},
		{math.MaxInt64, 1, math.MaxInt64},
		{math.MaxInt64 - 5, 5, math.MaxInt64},
		{math.MaxInt64 - 5, 6, math.MaxInt64},
	}
	for _, tt := range tests {
		if got := saturatingAdd(tt.x, tt.y); got != tt.want {
			t.Errorf("saturatingAdd(%d, %d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}
