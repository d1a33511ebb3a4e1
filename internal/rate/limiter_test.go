package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter() (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemory()
	l.now = clock.now
	return l, clock
}

func TestAllowWithinWindow(t *testing.T) {
	l, clock := newTestLimiter()
	key := Key("submit", 7)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow(key, 3, time.Minute)
		assert.True(t, ok, "hit %d", i)
	}
	clock.t = clock.t.Add(20 * time.Second)
	ok, retry := l.Allow(key, 3, time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, retry)

	clock.t = clock.t.Add(40 * time.Second)
	ok, _ = l.Allow(key, 3, time.Minute)
	assert.True(t, ok)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()

	ok, _ := l.Allow(Key("vote", 1), 1, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(Key("vote", 1), 1, time.Minute)
	assert.False(t, ok)
	ok, _ = l.Allow(Key("vote", 2), 1, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(Key("submit", 1), 1, time.Minute)
	assert.True(t, ok)
}

func TestSweepDropsExpiredWindows(t *testing.T) {
	l, clock := newTestLimiter()
	for i := 0; i < 10; i++ {
		l.Allow(Key("upload", int64(i)), 5, time.Second)
	}
	assert.Equal(t, 10, l.Len())

	clock.t = clock.t.Add(time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.Allow("fresh", 1<<30, time.Hour)
	}
	assert.Equal(t, 1, l.Len())
}
