package reporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMsToNextAction(t *testing.T) {
	tests := []struct {
		name      string
		now       int64
		frequency int64
		offset    int64
		minimum   int64
		want      int64
	}{
		{"before offset slot", 1940, 300_000, 2_000, 50, 60},
		{"slot within minimum skips to next", 1951, 300_000, 2_000, 50, 300_049},
		{"aligned instant schedules full period", 2_000, 300_000, 2_000, 0, 300_000},
		{"zero offset", 10, 1_000, 0, 0, 990},
		{"late in period wraps", 601_940, 300_000, 2_000, 50, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MsToNextAction(tt.now, tt.frequency, tt.offset, tt.minimum))
		})
	}
}

func TestMsToNextActionBounds(t *testing.T) {
	// Without a minimum gap the result never exceeds one full period and
	// is never zero.
	for now := int64(0); now < 5_000; now += 7 {
		got := MsToNextAction(now, 1_000, 250, 0)
		assert.Greater(t, got, int64(0), "now=%d", now)
		assert.LessOrEqual(t, got, int64(1_000), "now=%d", now)
		assert.Equal(t, int64(250), (now+got)%1_000, "now=%d", now)
	}
}
