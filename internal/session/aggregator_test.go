package session

import (
	"strings"
	"testing"
	"time"

	"absensi-kiosk-go/internal/core/models"
	"absensi-kiosk-go/internal/i18n"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(1500*time.Millisecond, 0, i18n.NewTranslatorFromDefaults())
}

func obs(name string, status models.FaceStatus, eventType string, late bool) models.FaceObservation {
	return models.FaceObservation{Name: name, Status: status, EventType: eventType, Late: late}
}

func TestQuietPeriodExtendsPerArrival(t *testing.T) {
	agg := newTestAggregator()
	t0 := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeIn, false), t0)
	agg.Observe(obs("Budi", models.FaceStatusOK, models.EventTypeIn, false), t0.Add(time.Second))

	// Alices ursprüngliche Deadline (t0+1.5s) ist durch Budi verschoben
	if _, fired := agg.CheckQuiet(t0.Add(2 * time.Second)); fired {
		t.Fatal("session fired before the rearmed quiet period elapsed")
	}

	greeting, fired := agg.CheckQuiet(t0.Add(2500 * time.Millisecond))
	if !fired {
		t.Fatal("session did not fire after the quiet period elapsed")
	}
	if len(greeting.Names) != 2 || greeting.Names[0] != "Alice" || greeting.Names[1] != "Budi" {
		t.Errorf("names = %v, want [Alice Budi]", greeting.Names)
	}
	if !strings.Contains(greeting.Text, "Alice") || !strings.Contains(greeting.Text, "Budi") {
		t.Errorf("combined text missing names: %q", greeting.Text)
	}

	// Genau eine Ansage pro Sitzung
	if _, fired := agg.CheckQuiet(t0.Add(3 * time.Second)); fired {
		t.Error("session fired twice")
	}
	if agg.PendingCount() != 0 {
		t.Errorf("pending = %d after fire, want 0", agg.PendingCount())
	}
}

func TestDuplicateNameRearmsWithoutSecondEntry(t *testing.T) {
	agg := newTestAggregator()
	t0 := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeIn, false), t0)
	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeIn, false), t0.Add(time.Second))

	if agg.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", agg.PendingCount())
	}
	if _, fired := agg.CheckQuiet(t0.Add(2 * time.Second)); fired {
		t.Fatal("duplicate observation must still extend the quiet period")
	}

	greeting, fired := agg.CheckQuiet(t0.Add(2500 * time.Millisecond))
	if !fired {
		t.Fatal("session did not fire")
	}
	if len(greeting.Names) != 1 {
		t.Errorf("names = %v, want exactly one", greeting.Names)
	}
}

func TestNonOKStatusesIgnored(t *testing.T) {
	agg := newTestAggregator()
	t0 := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	agg.Observe(obs("Alice", models.FaceStatusUnknown, models.EventTypeIn, false), t0)
	agg.Observe(obs("Budi", models.FaceStatusCooldown, models.EventTypeIn, false), t0)
	agg.Observe(obs("Citra", models.FaceStatusDuplicate, models.EventTypeIn, false), t0)
	agg.Observe(obs("", models.FaceStatusOK, models.EventTypeIn, false), t0)

	if agg.PendingCount() != 0 {
		t.Fatalf("pending = %d, want 0", agg.PendingCount())
	}
	if _, fired := agg.CheckQuiet(t0.Add(time.Minute)); fired {
		t.Fatal("empty session must never fire")
	}
}

func TestNonOKDoesNotRearmDeadline(t *testing.T) {
	agg := newTestAggregator()
	t0 := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeIn, false), t0)
	agg.Observe(obs("Budi", models.FaceStatusUnknown, models.EventTypeIn, false), t0.Add(time.Second))

	if _, fired := agg.CheckQuiet(t0.Add(1600 * time.Millisecond)); !fired {
		t.Fatal("non-ok observation must not extend the quiet period")
	}
}

func TestLateNoticeAppended(t *testing.T) {
	agg := newTestAggregator()
	t0 := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeIn, true), t0)

	greeting, fired := agg.CheckQuiet(t0.Add(2 * time.Second))
	if !fired {
		t.Fatal("session did not fire")
	}
	if !greeting.Late {
		t.Error("late flag not set")
	}
	if !strings.Contains(greeting.Text, "terlambat") {
		t.Errorf("late notice missing from text: %q", greeting.Text)
	}
}

func TestFarewellOverridesLate(t *testing.T) {
	agg := newTestAggregator()
	t0 := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeOut, true), t0)
	agg.Observe(obs("Budi", models.FaceStatusOK, models.EventTypeIn, false), t0.Add(100*time.Millisecond))

	greeting, fired := agg.CheckQuiet(t0.Add(2 * time.Second))
	if !fired {
		t.Fatal("session did not fire")
	}
	if !greeting.Farewell {
		t.Error("farewell flag not set when an OUT event is present")
	}
	if greeting.Late {
		t.Error("farewell must suppress the late flag")
	}
	if !strings.Contains(greeting.Text, "Sampai jumpa") {
		t.Errorf("expected farewell text, got %q", greeting.Text)
	}
	if strings.Contains(greeting.Text, "terlambat") {
		t.Errorf("farewell must not carry a late notice: %q", greeting.Text)
	}
}

func TestFaceCooldownSuppressesRegreeting(t *testing.T) {
	agg := NewAggregator(1500*time.Millisecond, 10*time.Second, i18n.NewTranslatorFromDefaults())
	t0 := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeIn, false), t0)
	if _, fired := agg.CheckQuiet(t0.Add(2 * time.Second)); !fired {
		t.Fatal("first session did not fire")
	}

	// Alice steht noch vor der Kamera: innerhalb der Sperre keine neue Sitzung
	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeIn, false), t0.Add(4*time.Second))
	if agg.PendingCount() != 0 {
		t.Error("recently greeted face must not start a new session")
	}

	// Nach Ablauf der Sperre wird wieder begrüßt
	agg.Observe(obs("Alice", models.FaceStatusOK, models.EventTypeIn, false), t0.Add(15*time.Second))
	if agg.PendingCount() != 1 {
		t.Error("face must be greeted again after the cooldown")
	}
}

func TestGroupGreeting(t *testing.T) {
	agg := newTestAggregator()
	t0 := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

	for _, name := range []string{"Alice", "Budi", "Citra"} {
		agg.Observe(obs(name, models.FaceStatusOK, models.EventTypeIn, false), t0)
	}

	greeting, fired := agg.CheckQuiet(t0.Add(2 * time.Second))
	if !fired {
		t.Fatal("session did not fire")
	}
	if len(greeting.Names) != 3 {
		t.Fatalf("names = %v, want 3", greeting.Names)
	}
	if !strings.Contains(greeting.Text, "semuanya") {
		t.Errorf("expected group greeting, got %q", greeting.Text)
	}
}
