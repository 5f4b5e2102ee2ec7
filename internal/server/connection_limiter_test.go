package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionLimits_GlobalCap(t *testing.T) {
	limits := NewConnectionLimits(2, 10)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)

	limits.Release("10.0.0.1")
	ok, _ = limits.Acquire("10.0.0.3")
	assert.True(t, ok)
}

func TestConnectionLimits_PerIPCap(t *testing.T) {
	limits := NewConnectionLimits(100, 2)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.1")
	assert.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)

	// Per-IP rejection must not leak a global slot
	assert.Equal(t, int64(2), limits.Current())

	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)
}

func TestConnectionLimits_ReleaseFreesPerIPSlot(t *testing.T) {
	limits := NewConnectionLimits(10, 1)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.1")
	assert.False(t, ok)

	limits.Release("10.0.0.1")
	ok, _ = limits.Acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestConnectionLimits_ConcurrentAcquire(t *testing.T) {
	limits := NewConnectionLimits(50, 50)

	var wg sync.WaitGroup
	acquired := make(chan bool, 100)
	for ri := 0; ri < 100; ri++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := limits.Acquire("10.0.0.1")
			acquired <- ok
		}()
	}
	wg.Wait()
	close(acquired)

	granted := 0
	for ok := range acquired {
		if ok {
			granted++
		}
	}
	assert.Equal(t, 50, granted)
	assert.Equal(t, int64(50), limits.Current())
}
