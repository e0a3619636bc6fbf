package admission

import (
	"sync"
	"time"

	"mediaresolver/internal/resolver"
)

// FixedWindow is an integer fixed-window counter keyed by caller
// identifier. Windows are created lazily on first sight of an identifier
// and reset when the wall-clock window elapses. Each identifier has its
// own lock so unrelated callers never serialize.
type FixedWindow struct {
	clock   resolver.Clock
	windows sync.Map // identifier -> *window
}

type window struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// NewFixedWindow constructs a FixedWindow limiter.
func NewFixedWindow(clock resolver.Clock) *FixedWindow {
	return &FixedWindow{clock: clock}
}

// Allow consumes one slot for identifier. When the ceiling is hit it
// returns false and the time remaining in the current window.
func (l *FixedWindow) Allow(identifier string, limit int, windowDur time.Duration) (bool, time.Duration) {
	if limit <= 0 || windowDur <= 0 {
		return true, 0
	}
	value, _ := l.windows.LoadOrStore(identifier, &window{})
	w := value.(*window)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.clock.Now()
	if w.start.IsZero() || now.Sub(w.start) >= windowDur {
		w.start = now
		w.count = 0
	}
	if w.count >= limit {
		return false, windowDur - now.Sub(w.start)
	}
	w.count++
	return true, 0
}
