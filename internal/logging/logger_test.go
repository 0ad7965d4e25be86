package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestFormatDuration validates the compact duration rendering.
func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "zero", d: 0, want: "0s"},
		{name: "seconds only", d: 45 * time.Second, want: "45s"},
		{name: "rounds sub-second", d: 1500 * time.Millisecond, want: "2s"},
		{name: "exactly one minute", d: time.Minute, want: "1m 0s"},
		{name: "minutes and seconds", d: 90 * time.Second, want: "1m 30s"},
		{name: "hours", d: time.Hour + time.Minute + time.Second, want: "1h 1m 1s"},
		{name: "many hours", d: 25*time.Hour + 30*time.Minute, want: "25h 30m 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.d))
		})
	}
}
