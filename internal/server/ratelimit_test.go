package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestRateLimiter_Allow(t *testing.T) {
	l := NewRequestRateLimiter(1.0, 3)

	// Burst of 3 goes through, the fourth is limited.
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	// Other IPs have their own bucket.
	assert.True(t, l.Allow("5.6.7.8"))
	assert.Equal(t, 2, l.ActiveLimiters())
}
