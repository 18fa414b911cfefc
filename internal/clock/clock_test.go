package clock

import (
	"sync"
	"testing"
	"time"
)

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}
	c.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, c.Now())
	}
	c.Advance(-time.Hour)
	if want := start.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Fatalf("negative advance moved the clock: %v", c.Now())
	}
	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Set: expected %v, got %v", start, c.Now())
	}
}

func TestRealClock_NonDecreasing(t *testing.T) {
	c := Real()
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := c.Now()
			for i := 0; i < 1000; i++ {
				now := c.Now()
				if now.Before(prev) {
					t.Errorf("clock went backwards: %v after %v", now, prev)
					return
				}
				prev = now
			}
		}()
	}
	wg.Wait()
}

func TestRealClock_HoldsLastValue(t *testing.T) {
	rc := &realClock{last: time.Now().Add(time.Hour)}
	if got := rc.Now(); !got.Equal(rc.last) {
		t.Fatalf("expected clock to hold %v, got %v", rc.last, got)
	}
}
