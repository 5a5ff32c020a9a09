package commentary

import (
	"sync"
	"time"
)

// RateWindow bounds generation-call throughput over a trailing interval.
// A successful Reserve records the call before dispatch, so interleaved
// requests observe the reservation immediately.
type RateWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	stamps []time.Time
}

// NewRateWindow creates a window allowing limit calls per the trailing
// duration. now may be nil to use time.Now.
func NewRateWindow(limit int, window time.Duration, now func() time.Time) *RateWindow {
	if now == nil {
		now = time.Now
	}
	return &RateWindow{limit: limit, window: window, now: now}
}

// Reserve records a call slot and returns true, or returns false without
// recording anything when the trailing window is already at the ceiling.
func (w *RateWindow) Reserve() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.now())
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, w.now())
	return true
}

// Len returns the number of calls recorded within the trailing window.
func (w *RateWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.stamps)
}

// prune drops timestamps older than the window. Caller holds w.mu.
func (w *RateWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
