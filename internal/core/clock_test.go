package core

import (
	"sync"
	"testing"
	"time"
)

func TestSystemClock(t *testing.T) {
	before := time.Now()
	got := SystemClock{}.Now()
	if got.Before(before) {
		t.Errorf("system clock went backwards: %v < %v", got, before)
	}
}

func TestManualClockFrozen(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	if !c.Now().Equal(start) {
		t.Errorf("expected %v, got %v", start, c.Now())
	}
	if !c.Now().Equal(c.Now()) {
		t.Error("manual clock should not move on its own")
	}
}

func TestManualClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	got := c.Advance(4 * time.Minute)
	if want := start.Add(4 * time.Minute); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	later := start.Add(time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("expected %v after Set, got %v", later, c.Now())
	}
}

func TestManualClockConcurrent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()

	if want := start.Add(100 * time.Second); !c.Now().Equal(want) {
		t.Errorf("expected %v after 100 advances, got %v", want, c.Now())
	}
}
