package exitcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestName validates the code-to-name mapping.
func TestName(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{Success, "Success"},
		{Error, "Error"},
		{Rejected, "Rejected"},
		{CorruptedState, "CorruptedState"},
		{LockTimeout, "LockTimeout"},
		{AgentUnavailable, "AgentUnavailable"},
		{Interrupted, "Interrupted"},
		{99, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.code))
	}
}
