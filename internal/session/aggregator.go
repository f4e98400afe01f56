package session

import (
	"strings"
	"sync"
	"time"

	"absensi-kiosk-go/internal/core/models"
	"absensi-kiosk-go/internal/i18n"

	log "github.com/sirupsen/logrus"
)

// Greeting ist die kombinierte Ansage einer abgeschlossenen Sitzung
type Greeting struct {
	Names    []string `json:"names"`
	Text     string   `json:"text"`
	Farewell bool     `json:"farewell"`
	Late     bool     `json:"late"`
}

// Aggregator sammelt asynchron eintreffende, erfolgreich erkannte
// Gesichter zu einer Begrüßungs-Sitzung. Jede neue, noch unbekannte
// Person verlängert das Ruhefenster; läuft es ohne Neuzugang ab, wird
// genau eine kombinierte Ansage für die gesamte Menge erzeugt.
//
// Zustände: Idle (keine wartenden Gesichter), Collecting (mindestens
// eines), Triggering (Ruhefenster abgelaufen, Ansage wird emittiert).
type Aggregator struct {
	mu           sync.Mutex
	pending      []models.PendingFace
	byName       map[string]bool
	greetedUntil map[string]time.Time
	deadline     time.Time
	quietPeriod  time.Duration
	faceCooldown time.Duration
	translator   *i18n.Translator
}

// NewAggregator erstellt einen Aggregator mit dem angegebenen Ruhefenster.
// faceCooldown sperrt eine bereits begrüßte Person für die nächste Sitzung,
// damit eine stehende Person nicht im Sekundentakt begrüßt wird; 0 schaltet
// die Sperre ab.
func NewAggregator(quietPeriod, faceCooldown time.Duration, translator *i18n.Translator) *Aggregator {
	return &Aggregator{
		byName:       make(map[string]bool),
		greetedUntil: make(map[string]time.Time),
		quietPeriod:  quietPeriod,
		faceCooldown: faceCooldown,
		translator:   translator,
	}
}

// Observe nimmt eine Gesichtsbeobachtung entgegen. Nur Status "ok" zählt;
// alle anderen Status betreten die Menge nicht und beeinflussen auch das
// Ruhefenster nicht. Ein bereits bekannter Name erzeugt keinen zweiten
// Eintrag, verlängert aber das Ruhefenster, weil Anwesenheit bedeutet,
// dass noch weitere Gesichter eintreffen können.
func (a *Aggregator) Observe(face models.FaceObservation, now time.Time) {
	if face.Status != models.FaceStatusOK || face.Name == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if until, ok := a.greetedUntil[face.Name]; ok {
		if now.Before(until) {
			return
		}
		delete(a.greetedUntil, face.Name)
	}

	if !a.byName[face.Name] {
		a.byName[face.Name] = true
		a.pending = append(a.pending, models.PendingFace{
			Name:      face.Name,
			EventType: face.EventType,
			Late:      face.Late,
		})
		log.Debugf("Greeting session: added %s (pending: %d)", face.Name, len(a.pending))
	}

	a.deadline = now.Add(a.quietPeriod)
}

// CheckQuiet prüft, ob das Ruhefenster abgelaufen ist. Wenn ja, wird die
// kombinierte Ansage geliefert und die Sitzung auf Idle zurückgesetzt.
// Der Aufruf erfolgt auf einer festen kurzen Periode unabhängig von der
// Framerate, da der Capture-Tick außerhalb des Scan-Modus ruht.
func (a *Aggregator) CheckQuiet(now time.Time) (*Greeting, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) == 0 {
		return nil, false
	}
	if now.Before(a.deadline) {
		return nil, false
	}

	greeting := a.compose(a.pending)

	if a.faceCooldown > 0 {
		for _, f := range a.pending {
			a.greetedUntil[f.Name] = now.Add(a.faceCooldown)
		}
	}

	a.pending = nil
	a.byName = make(map[string]bool)
	a.deadline = time.Time{}

	log.Infof("Greeting session fired for %d name(s): %s", len(greeting.Names), strings.Join(greeting.Names, ", "))
	return greeting, true
}

// PendingCount liefert die Anzahl wartender Gesichter
func (a *Aggregator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// compose baut die kombinierte Ansage. Ein OUT-Ereignis in der Menge macht
// die Ansage zur Verabschiedung und übersteuert die Verspätung; andernfalls
// ergänzt eine Verspätung den Hinweis darauf.
func (a *Aggregator) compose(pending []models.PendingFace) *Greeting {
	names := make([]string, 0, len(pending))
	farewell := false
	late := false
	for _, f := range pending {
		names = append(names, f.Name)
		if f.EventType == models.EventTypeOut {
			farewell = true
		}
		if f.Late {
			late = true
		}
	}

	var text string
	switch {
	case farewell:
		switch len(names) {
		case 1:
			text = a.translator.T(i18n.MsgFarewellSingle, map[string]interface{}{"Name": names[0]})
		case 2:
			text = a.translator.T(i18n.MsgFarewellPair, map[string]interface{}{"First": names[0], "Second": names[1]})
		default:
			text = a.translator.T(i18n.MsgFarewellGroup, nil)
		}
	default:
		switch len(names) {
		case 1:
			text = a.translator.T(i18n.MsgGreetingSingle, map[string]interface{}{"Name": names[0]})
		case 2:
			text = a.translator.T(i18n.MsgGreetingPair, map[string]interface{}{"First": names[0], "Second": names[1]})
		default:
			text = a.translator.T(i18n.MsgGreetingGroup, nil)
		}
		if late {
			text += " " + a.translator.T(i18n.MsgLateNotice, nil)
		}
	}

	return &Greeting{
		Names:    names,
		Text:     text,
		Farewell: farewell,
		Late:     late && !farewell,
	}
}
