package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSetSwap(t *testing.T) {
	g := NewGuard("IDLE")

	if got := g.Get(); got != "IDLE" {
		t.Errorf("Get() = %q, want IDLE", got)
	}

	g.Set("COLLECTING")
	if old := g.Swap("SUCCESS"); old != "COLLECTING" {
		t.Errorf("Swap returned %q, want COLLECTING", old)
	}
	if got := g.Get(); got != "SUCCESS" {
		t.Errorf("Get() after Swap = %q, want SUCCESS", got)
	}
}

func TestGuardWriteStruct(t *testing.T) {
	type counts struct{ started, failed int }
	g := NewGuard(counts{})

	g.Write(func(c *counts) {
		c.started = 3
		c.failed = 1
	})

	if got := g.Get(); got.started != 3 || got.failed != 1 {
		t.Errorf("Get() = %+v, want {3 1}", got)
	}
}

func TestGuardCompareAndSet(t *testing.T) {
	g := NewGuard(5)

	if g.CompareAndSet(9, func(cur int) bool { return cur > 10 }) {
		t.Error("CompareAndSet should refuse when match is false")
	}
	if !g.CompareAndSet(9, func(cur int) bool { return cur == 5 }) {
		t.Error("CompareAndSet should succeed when match is true")
	}
	if got := g.Get(); got != 9 {
		t.Errorf("Get() = %d, want 9", got)
	}
}

func TestGuardConcurrentSafety(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Write(func(v *int) { *v++ })
		}()
		go func() {
			defer wg.Done()
			_ = g.Get()
		}()
	}
	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() = %d, want 100", got)
	}
}
