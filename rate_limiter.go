package accounts

import (
	"fmt"
	"sync"
	"time"
)

type rateWindow struct {
	startedAt time.Time
	count     int
}

// RateLimiter is an in-process fixed-window counter keyed by caller. The
// first call in a window starts it; once max calls land inside the window
// further calls are rejected until the window rolls over.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	clock   Clock
	logger  Logger
}

type RateLimiterOption func(*RateLimiter)

// WithRateLimiterClock overrides the time source, used in tests.
func WithRateLimiterClock(clock Clock) RateLimiterOption {
	return func(r *RateLimiter) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func WithRateLimiterLogger(logger Logger) RateLimiterOption {
	return func(r *RateLimiter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		windows: map[string]rateWindow{},
		clock:   time.Now,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Allow consumes one call from the key's budget. It returns
// ErrTooManyAttempts when the budget for the current window is spent.
func (r *RateLimiter) Allow(key string, budget RateBudget) error {
	if budget.Max <= 0 || budget.Window <= 0 {
		return nil
	}

	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	win, ok := r.windows[key]
	if !ok || now.Sub(win.startedAt) >= budget.Window {
		r.windows[key] = rateWindow{startedAt: now, count: 1}
		return nil
	}

	if win.count >= budget.Max {
		r.logger.Warn("rate limit exceeded key=%s count=%d max=%d", key, win.count, budget.Max)
		return ErrTooManyAttempts
	}

	win.count++
	r.windows[key] = win

	return nil
}

// Sweep drops windows older than the given horizon so the map does not grow
// without bound. Callers run it from a ticker.
func (r *RateLimiter) Sweep(horizon time.Duration) {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, win := range r.windows {
		if now.Sub(win.startedAt) >= horizon {
			delete(r.windows, key)
		}
	}
}

// RateKey builds a stable limiter key from the remote address and, when
// known, the account identifier.
func RateKey(operation, remoteAddr, identifier string) string {
	return fmt.Sprintf("%s|%s|%s", operation, remoteAddr, identifier)
}
