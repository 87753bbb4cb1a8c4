package spam

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDetector_ThresholdWithinWindow(t *testing.T) {
	d := NewDetector(10*time.Second, 8, zap.NewNop())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// 7 messages within 5 seconds: below the limit.
	var last time.Time
	for i := 0; i < 7; i++ {
		last = base.Add(time.Duration(i) * 700 * time.Millisecond)
		res := d.Check("guild-1", "user-1", last)
		assert.False(t, res.IsSpam, "message %d should not be spam", i+1)
		assert.Equal(t, i+1, res.Count)
		assert.Equal(t, 10, res.WindowSec)
	}

	// The 8th within the window tips it over.
	res := d.Check("guild-1", "user-1", last.Add(time.Second))
	assert.True(t, res.IsSpam)
	assert.Equal(t, 8, res.Count)
}

func TestDetector_WindowExpiryResetsCount(t *testing.T) {
	d := NewDetector(10*time.Second, 8, zap.NewNop())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		d.Check("guild-1", "user-1", base.Add(time.Duration(i)*time.Second))
	}

	// Past the window, a fresh message counts from one again.
	res := d.Check("guild-1", "user-1", base.Add(30*time.Second))
	assert.False(t, res.IsSpam)
	assert.Equal(t, 1, res.Count)
}

func TestDetector_KeysAreIndependent(t *testing.T) {
	d := NewDetector(10*time.Second, 3, zap.NewNop())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d.Check("guild-1", "flooder", base.Add(time.Duration(i)*time.Second))
	}
	res := d.Check("guild-1", "quiet", base.Add(3*time.Second))
	assert.False(t, res.IsSpam, "another author in the same scope is unaffected")
	assert.Equal(t, 1, res.Count)

	res = d.Check("guild-2", "flooder", base.Add(3*time.Second))
	assert.False(t, res.IsSpam, "the same author in another scope is unaffected")
	assert.Equal(t, 1, res.Count)
}

func TestDetector_SweepsIdleKeys(t *testing.T) {
	d := NewDetector(10*time.Second, 8, zap.NewNop())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		d.Check("guild-1", fmt.Sprintf("user-%d", i), base)
	}
	assert.Equal(t, 50, d.Keys())

	// Well past the window and the sweep interval, one active key remains.
	d.Check("guild-1", "user-0", base.Add(5*time.Minute))
	assert.Equal(t, 1, d.Keys())
}
