// Package rate implements fixed-window request limits keyed by actor and
// action.
package rate

import (
	"fmt"
	"sync"
	"time"
)

type Limiter interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

// Key builds the limiter key for one user performing one action.
func Key(action string, userID int64) string {
	return fmt.Sprintf("%s:user:%d", action, userID)
}

type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	sweeps  int
}

type window struct {
	count   int
	resetAt time.Time
	length  time.Duration
}

// sweepEvery is how many Allow calls pass between expired-window sweeps.
const sweepEvery = 1024

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window), now: time.Now}
}

// Allow counts one hit against key and reports whether it fits under limit
// for the current window, along with the time left in that window.
func (m *MemoryLimiter) Allow(key string, limit int, length time.Duration) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweeps++
	if m.sweeps >= sweepEvery {
		m.sweep(now)
		m.sweeps = 0
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) || w.length != length {
		w = &window{resetAt: now.Add(length), length: length}
		m.windows[key] = w
	}
	remaining := w.resetAt.Sub(now)
	if w.count >= limit {
		return false, remaining
	}
	w.count++
	return true, remaining
}

func (m *MemoryLimiter) sweep(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
		}
	}
}

