package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/siwegate/ports"
)

type window struct {
	count   int
	expires time.Time
}

// MemoryLimiter is a per-process fixed-window counter
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]window
	now     func() time.Time
}

var _ ports.RateLimiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(limit int, w time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  w,
		windows: make(map[string]window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.expires) {
		w = window{expires: now.Add(l.window)}
	}
	w.count++
	l.windows[key] = w

	return w.count <= l.limit, nil
}

// Sweep drops expired windows
func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, w := range l.windows {
		if !now.Before(w.expires) {
			delete(l.windows, k)
		}
	}
}
