package state

import (
	"sync"
	"time"
)

// Gate begrenzt die Rate der Erkennungsanfragen und stellt sicher, dass
// höchstens eine Anfrage gleichzeitig unterwegs ist (Single-Flight).
// Alle Zustandsübergänge laufen unter einem Mutex, damit parallele
// Capture-Ticks und Hintergrund-Abschlüsse nicht doppelt zulassen oder
// das In-Flight-Flag verlieren.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	lastSent time.Time
	inFlight bool
}

// NewGate erstellt ein Gate mit dem Mindestabstand zwischen Anfragen
func NewGate(interval time.Duration) *Gate {
	return &Gate{interval: interval}
}

// TryAcquire meldet an, ob jetzt eine neue Anfrage gestartet werden darf.
// Bei Zulassung werden lastSent und das In-Flight-Flag atomar gesetzt.
// Aufrufer dürfen innerhalb desselben Ticks nicht erneut versuchen.
func (g *Gate) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return false
	}
	if !g.lastSent.IsZero() && now.Sub(g.lastSent) < g.interval {
		return false
	}

	g.lastSent = now
	g.inFlight = true
	return true
}

// Release gibt den Single-Flight-Slot wieder frei. Wird nach Abschluss der
// Hintergrundanfrage bedingungslos aufgerufen, egal ob Erfolg oder Fehler.
func (g *Gate) Release() {
	g.mu.Lock()
	g.inFlight = false
	g.mu.Unlock()
}

// InFlight meldet, ob aktuell eine Anfrage unterwegs ist
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Backoff-Grenzen für den Verbindungszustand
const (
	backoffFloor = 1 * time.Second
	backoffCap   = 30 * time.Second
)

// ConnectionState hält den Online/Offline-Zustand der Verbindung zum
// Erkennungsdienst. Mutationen laufen ausschließlich über MarkOnline und
// MarkOffline; Leser erhalten einen konsistenten Snapshot.
type ConnectionState struct {
	mu                  sync.Mutex
	online              bool
	consecutiveFailures int
	retryBackoff        time.Duration
}

// ConnectionSnapshot ist eine konsistente Momentaufnahme des Zustands
type ConnectionSnapshot struct {
	Online              bool          `json:"online"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	RetryBackoff        time.Duration `json:"retry_backoff"`
}

// NewConnectionState erstellt den Verbindungszustand; der Start-Zustand
// ist optimistisch online, die erste Probe korrigiert ihn gegebenenfalls.
func NewConnectionState() *ConnectionState {
	return &ConnectionState{
		online:       true,
		retryBackoff: backoffFloor,
	}
}

// MarkOnline setzt den Zustand auf online und setzt Fehlerzähler und
// Backoff auf ihre Ausgangswerte zurück
func (c *ConnectionState) MarkOnline() {
	c.mu.Lock()
	c.online = true
	c.consecutiveFailures = 0
	c.retryBackoff = backoffFloor
	c.mu.Unlock()
}

// MarkOffline setzt den Zustand auf offline, erhöht den Fehlerzähler und
// verdoppelt den Backoff bis zur Obergrenze
func (c *ConnectionState) MarkOffline() {
	c.mu.Lock()
	c.online = false
	c.consecutiveFailures++
	if c.consecutiveFailures > 1 {
		c.retryBackoff *= 2
		if c.retryBackoff > backoffCap {
			c.retryBackoff = backoffCap
		}
	}
	c.mu.Unlock()
}

// Online meldet den aktuellen Online-Zustand
func (c *ConnectionState) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Snapshot liefert eine Momentaufnahme für UI und Statusendpunkt
func (c *ConnectionState) Snapshot() ConnectionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionSnapshot{
		Online:              c.online,
		ConsecutiveFailures: c.consecutiveFailures,
		RetryBackoff:        c.retryBackoff,
	}
}
