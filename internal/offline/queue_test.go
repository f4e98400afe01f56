package offline

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// stubSender zählt Sendeversuche und schlägt für ausgewählte Payloads fehl
type stubSender struct {
	sent    [][]byte
	failFor map[string]bool
}

func (s *stubSender) SendQueued(imageData []byte) error {
	s.sent = append(s.sent, imageData)
	if s.failFor[string(imageData)] {
		return errors.New("API error 503: service unavailable")
	}
	return nil
}

func queueFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestMissingDirectoryIsEmptyQueue(t *testing.T) {
	q := NewQueue(filepath.Join(t.TempDir(), "does-not-exist"))

	if got := q.Count(); got != 0 {
		t.Errorf("Count on missing dir = %d, want 0", got)
	}
	if got := q.ReplayAll(&stubSender{}); got != 0 {
		t.Errorf("ReplayAll on missing dir = %d, want 0", got)
	}
}

func TestDurabilityRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "queue")
	q := NewQueue(dir)

	for i := 0; i < 4; i++ {
		q.Enqueue([]byte(fmt.Sprintf("frame-%d", i)))
	}
	if got := q.Count(); got != 4 {
		t.Fatalf("Count = %d, want 4", got)
	}

	sender := &stubSender{}
	if synced := q.ReplayAll(sender); synced != 4 {
		t.Errorf("synced = %d, want 4", synced)
	}
	if got := q.Count(); got != 0 {
		t.Errorf("remaining items = %d, want 0", got)
	}
	if len(sender.sent) != 4 {
		t.Errorf("sender saw %d items, want 4", len(sender.sent))
	}
}

func TestPartialReplayKeepsFailedItem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "queue")
	q := NewQueue(dir)

	q.Enqueue([]byte("item-1"))
	q.Enqueue([]byte("item-2"))
	q.Enqueue([]byte("item-3"))

	sender := &stubSender{failFor: map[string]bool{"item-2": true}}
	if synced := q.ReplayAll(sender); synced != 2 {
		t.Errorf("synced = %d, want 2", synced)
	}

	names := queueFiles(t, dir)
	if len(names) != 1 {
		t.Fatalf("remaining files = %v, want exactly one", names)
	}

	// Der verbliebene Eintrag muss item-2 sein und einen erhöhten
	// Retry-Zähler tragen.
	data, err := os.ReadFile(filepath.Join(dir, names[0]))
	if err != nil {
		t.Fatalf("read remaining file: %v", err)
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		t.Fatalf("decode remaining file: %v", err)
	}
	payload, _ := base64.StdEncoding.DecodeString(item.ImageB64)
	if string(payload) != "item-2" {
		t.Errorf("remaining payload = %q, want item-2", payload)
	}
	if item.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", item.RetryCount)
	}
}

func TestCorruptItemEvicted(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "queue")
	q := NewQueue(dir)

	q.Enqueue([]byte("good"))
	if err := os.WriteFile(filepath.Join(dir, "req_00000000_000000_000000.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	sender := &stubSender{}
	if synced := q.ReplayAll(sender); synced != 1 {
		t.Errorf("synced = %d, want 1 (corrupt item must not count)", synced)
	}
	if got := q.Count(); got != 0 {
		t.Errorf("remaining items = %d, want 0 (corrupt item evicted)", got)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sender saw %d items, want 1", len(sender.sent))
	}
}

func TestUndecodableImageEvicted(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "queue")
	q := NewQueue(dir)

	bad, _ := json.Marshal(Item{Timestamp: "x", ImageB64: "%%%not-base64%%%"})
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "req_00000000_000000_000001.json"), bad, 0644); err != nil {
		t.Fatal(err)
	}

	if synced := q.ReplayAll(&stubSender{}); synced != 0 {
		t.Errorf("synced = %d, want 0", synced)
	}
	if got := q.Count(); got != 0 {
		t.Errorf("remaining items = %d, want 0", got)
	}
}

func TestReplayOrderIsChronological(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "queue")
	q := NewQueue(dir)

	q.Enqueue([]byte("first"))
	q.Enqueue([]byte("second"))
	q.Enqueue([]byte("third"))

	sender := &stubSender{}
	q.ReplayAll(sender)

	want := []string{"first", "second", "third"}
	for i, payload := range sender.sent {
		if string(payload) != want[i] {
			t.Errorf("replay position %d = %q, want %q", i, payload, want[i])
		}
	}
}
