package health

import (
	"context"
	"testing"
	"time"

	"absensi-kiosk-go/internal/core/router"
	"absensi-kiosk-go/internal/core/state"
)

type scriptedProber struct {
	results []bool
	pos     int
}

func (p *scriptedProber) Probe(ctx context.Context) bool {
	if p.pos >= len(p.results) {
		return false
	}
	r := p.results[p.pos]
	p.pos++
	return r
}

type recordingSink struct {
	events []router.Event
}

func (s *recordingSink) Post(event router.Event) {
	s.events = append(s.events, event)
}

func (s *recordingSink) transitions() []router.HealthChanged {
	var seen []router.HealthChanged
	for _, e := range s.events {
		if hc, ok := e.(router.HealthChanged); ok {
			seen = append(seen, hc)
		}
	}
	return seen
}

func newTestMonitor(prober Prober) (*Monitor, *recordingSink, *state.ConnectionState) {
	sink := &recordingSink{}
	conn := state.NewConnectionState()
	m := NewMonitor(prober, conn, sink, 10*time.Second, 30*time.Second)
	return m, sink, conn
}

func TestTransitionsPostedExactlyOnce(t *testing.T) {
	prober := &scriptedProber{results: []bool{true, true, false, false, true}}
	m, sink, conn := newTestMonitor(prober)

	var intervals []time.Duration
	for range prober.results {
		intervals = append(intervals, m.Check(context.Background()))
	}

	seen := sink.transitions()
	if len(seen) != 2 {
		t.Fatalf("transitions = %d, want 2 (one offline, one recovery)", len(seen))
	}
	if seen[0].Online || !seen[1].Online {
		t.Errorf("transition order wrong: %+v", seen)
	}

	want := []time.Duration{30 * time.Second, 30 * time.Second, 10 * time.Second, 10 * time.Second, 30 * time.Second}
	for i, interval := range intervals {
		if interval != want[i] {
			t.Errorf("probe %d: next interval = %s, want %s", i, interval, want[i])
		}
	}

	if !conn.Online() {
		t.Error("connection state should be online after final probe")
	}
}

func TestInitialStateIsOptimisticallyOnline(t *testing.T) {
	prober := &scriptedProber{results: []bool{true}}
	m, sink, _ := newTestMonitor(prober)

	m.Check(context.Background())
	if seen := sink.transitions(); len(seen) != 0 {
		t.Errorf("first successful probe must not post a transition, got %+v", seen)
	}
}

func TestFirstFailedProbePostsOfflineTransition(t *testing.T) {
	prober := &scriptedProber{results: []bool{false}}
	m, sink, conn := newTestMonitor(prober)

	m.Check(context.Background())
	seen := sink.transitions()
	if len(seen) != 1 || seen[0].Online {
		t.Fatalf("expected one offline transition, got %+v", seen)
	}
	if conn.Online() {
		t.Error("connection state should be offline")
	}
	if seen[0].NextProbe != 10*time.Second {
		t.Errorf("next probe hint = %s, want 10s", seen[0].NextProbe)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	prober := &scriptedProber{}
	m, _, _ := newTestMonitor(prober)

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	m.Stop()
	m.Stop()
}
