package telemetry

import (
	"strings"
	"testing"
)

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 2, want: "AlwaysOnSampler"},
		{rate: 0, want: "AlwaysOffSampler"},
		{rate: -1, want: "AlwaysOffSampler"},
		{rate: 0.25, want: "ParentBased"},
	}

	for _, tt := range tests {
		got := Sampler(tt.rate).Description()
		if !strings.HasPrefix(got, tt.want) {
			t.Errorf("Sampler(%v) = %q, want prefix %q", tt.rate, got, tt.want)
		}
	}
}

func TestTracer(t *testing.T) {
	if Tracer("test") == nil {
		t.Fatal("Tracer() returned nil")
	}
}
