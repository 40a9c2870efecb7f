package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateEllipsis(t *testing.T) {
	assert.Equal(t, "short", TruncateEllipsis("short", 30))
	assert.Equal(t, "exactly-ten", TruncateEllipsis("exactly-ten", 11))
	assert.Equal(t, "how do I plan a great first da...",
		TruncateEllipsis("how do I plan a great first date downtown", 30))
	// Runes, not bytes.
	assert.Equal(t, "héllo...", TruncateEllipsis("héllo wörld", 5))
}
