package state

import (
	"sync"
	"testing"
	"time"
)

func TestGateSingleFlight(t *testing.T) {
	g := NewGate(1500 * time.Millisecond)
	now := time.Now()

	if !g.TryAcquire(now) {
		t.Fatal("first acquire should succeed")
	}

	// Every tick after the first must be rejected until Release is called,
	// regardless of how much time passes.
	for i := 1; i <= 5; i++ {
		tick := now.Add(time.Duration(i) * 2 * time.Second)
		if g.TryAcquire(tick) {
			t.Fatalf("acquire %d succeeded while a request was in flight", i)
		}
	}

	g.Release()
	if g.InFlight() {
		t.Error("in-flight flag not cleared by Release")
	}
	if !g.TryAcquire(now.Add(10 * time.Second)) {
		t.Error("acquire after Release and elapsed interval should succeed")
	}
}

func TestGateRateLimit(t *testing.T) {
	g := NewGate(1500 * time.Millisecond)
	now := time.Now()

	if !g.TryAcquire(now) {
		t.Fatal("first acquire should succeed")
	}
	g.Release()

	if g.TryAcquire(now.Add(time.Second)) {
		t.Error("acquire within the minimum interval should be rejected")
	}
	if !g.TryAcquire(now.Add(1500 * time.Millisecond)) {
		t.Error("acquire at exactly the minimum interval should succeed")
	}
}

func TestGateConcurrentAcquire(t *testing.T) {
	g := NewGate(time.Millisecond)
	now := time.Now().Add(time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire(now) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("expected exactly one admission, got %d", admitted)
	}
}

func TestConnectionStateBackoff(t *testing.T) {
	c := NewConnectionState()

	if !c.Online() {
		t.Fatal("initial state should be online")
	}

	c.MarkOffline()
	snap := c.Snapshot()
	if snap.Online {
		t.Error("MarkOffline did not set offline")
	}
	if snap.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 failure, got %d", snap.ConsecutiveFailures)
	}
	if snap.RetryBackoff != time.Second {
		t.Errorf("first failure should keep backoff at floor, got %v", snap.RetryBackoff)
	}

	// Backoff doubles on repeated failures and is capped at 30s.
	for i := 0; i < 10; i++ {
		c.MarkOffline()
	}
	if got := c.Snapshot().RetryBackoff; got != 30*time.Second {
		t.Errorf("backoff should cap at 30s, got %v", got)
	}

	c.MarkOnline()
	snap = c.Snapshot()
	if !snap.Online || snap.ConsecutiveFailures != 0 || snap.RetryBackoff != time.Second {
		t.Errorf("MarkOnline should reset state, got %+v", snap)
	}
}
