package spam

import (
	"sync"
	"time"

	"github.com/mikey/chat-sentinel/internal/core"
	"go.uber.org/zap"
)

// windowKey identifies one sender within one scope
type windowKey struct {
	scope  string
	author string
}

// Detector is a per-(scope, author) sliding-window rate counter. A key
// whose recent message count reaches the limit within the window is
// flagged as spam; it drops back below the limit purely by the passage
// of time, no reset call exists.
//
// Keys idle for longer than the window are swept periodically so the map
// stays bounded in a long-lived process.
type Detector struct {
	mu        sync.Mutex
	window    time.Duration
	limit     int
	history   map[windowKey][]time.Time
	lastSweep time.Time
	logger    *zap.Logger
}

// sweepEvery is how often Check amortizes a full idle-key sweep
const sweepEvery = time.Minute

// NewDetector creates a detector flagging limit messages per window
func NewDetector(window time.Duration, limit int, logger *zap.Logger) *Detector {
	return &Detector{
		window:  window,
		limit:   limit,
		history: make(map[windowKey][]time.Time),
		logger:  logger,
	}
}

// Check records one message from (scope, author) at now and returns the
// surviving in-window count together with the spam decision
func (d *Detector) Check(scope, author string, now time.Time) core.SpamResult {
	key := windowKey{scope: scope, author: author}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.maybeSweep(now)

	times := append(d.history[key], now)

	// Prune entries that fell out of the trailing window.
	cut := 0
	for cut < len(times) && now.Sub(times[cut]) > d.window {
		cut++
	}
	times = times[cut:]
	d.history[key] = times

	return core.SpamResult{
		IsSpam:    len(times) >= d.limit,
		Count:     len(times),
		WindowSec: int(d.window / time.Second),
	}
}

// maybeSweep drops keys whose newest entry is older than the window.
// Caller holds d.mu.
func (d *Detector) maybeSweep(now time.Time) {
	if now.Sub(d.lastSweep) < sweepEvery {
		return
	}
	d.lastSweep = now

	removed := 0
	for key, times := range d.history {
		if len(times) == 0 || now.Sub(times[len(times)-1]) > d.window {
			delete(d.history, key)
			removed++
		}
	}
	if removed > 0 && d.logger != nil {
		d.logger.Debug("Swept idle spam windows", zap.Int("removed", removed))
	}
}

// Keys returns the number of tracked (scope, author) windows
func (d *Detector) Keys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history)
}
