package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter rate limits dispatches per device.
type Limiter struct {
	mu            sync.Mutex
	byDevice      map[string]*rate.Limiter
	ratePerMinute int
}

// NewLimiter returns a limiter allowing ratePerMinute dispatches per device
// with an equal burst. A non-positive rate disables limiting.
func NewLimiter(ratePerMinute int) *Limiter {
	return &Limiter{byDevice: make(map[string]*rate.Limiter), ratePerMinute: ratePerMinute}
}

// Allow reports whether deviceID may dispatch now.
func (l *Limiter) Allow(deviceID string) bool {
	if l == nil || l.ratePerMinute <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter := l.byDevice[deviceID]
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.ratePerMinute)), l.ratePerMinute)
		l.byDevice[deviceID] = limiter
	}
	return limiter.Allow()
}
