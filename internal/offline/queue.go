package offline

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Item ist die Dateiform einer aufgestauten Erkennungsanfrage
type Item struct {
	Timestamp  string `json:"timestamp"`
	ImageB64   string `json:"image_b64"`
	RetryCount int    `json:"retry_count"`
}

// Sender verschickt ein aufgestautes Bild erneut an den Erkennungsdienst.
// Ein nil-Fehler bedeutet HTTP-Erfolg; jeder Fehler lässt den Eintrag für
// einen späteren Versuch liegen.
type Sender interface {
	SendQueued(imageData []byte) error
}

// Queue ist die dauerhafte Offline-Warteschlange: eine JSON-Datei pro
// Anfrage, benannt nach einem Zeitstempel mit Mikrosekundenauflösung,
// damit die Wiedergabereihenfolge chronologisch stabil ist.
type Queue struct {
	dir string

	mu        sync.Mutex
	replaying bool
}

// NewQueue erstellt eine Warteschlange über dem angegebenen Verzeichnis.
// Das Verzeichnis wird erst beim ersten Enqueue angelegt; ein fehlendes
// Verzeichnis zählt als leere Warteschlange.
func NewQueue(dir string) *Queue {
	return &Queue{dir: dir}
}

// Enqueue schreibt eine fehlgeschlagene Anfrage auf die Platte.
// Schreibfehler werden nur geloggt und niemals nach oben gereicht, denn
// die Aufnahmeschleife muss auch bei Plattenproblemen weiterlaufen.
func (q *Queue) Enqueue(imageData []byte) {
	if err := os.MkdirAll(q.dir, 0755); err != nil {
		log.Errorf("Failed to create offline queue directory '%s': %v", q.dir, err)
		return
	}

	now := time.Now()
	timestamp := fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	filename := fmt.Sprintf("req_%s.json", timestamp)
	path := filepath.Join(q.dir, filename)

	item := Item{
		Timestamp:  timestamp,
		ImageB64:   base64.StdEncoding.EncodeToString(imageData),
		RetryCount: 0,
	}

	data, err := json.Marshal(item)
	if err != nil {
		log.Errorf("Failed to encode offline queue item: %v", err)
		return
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Errorf("Failed to save offline queue item '%s': %v", path, err)
		return
	}

	log.Infof("Saved offline request to %s", path)
}

// Count liefert die Anzahl wartender Einträge
func (q *Queue) Count() int {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if isQueueFile(e.Name()) {
			count++
		}
	}
	return count
}

// ReplayAll spielt alle wartenden Einträge in aufsteigender Reihenfolge
// gegen den Sender ab und liefert die Anzahl erfolgreich synchronisierter
// Einträge. Pro Eintrag: Dekodieren → Senden → bei Erfolg löschen, bei
// Sendefehler liegen lassen (Retry-Zähler erhöhen), bei Korruption löschen.
// Ein fehlgeschlagener Eintrag blockiert nie die Auswertung der übrigen.
// Ein zweiter Aufruf während einer laufenden Wiedergabe kehrt sofort zurück.
func (q *Queue) ReplayAll(sender Sender) int {
	q.mu.Lock()
	if q.replaying {
		q.mu.Unlock()
		log.Debug("Offline queue replay already running, skipping")
		return 0
	}
	q.replaying = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.replaying = false
		q.mu.Unlock()
	}()

	entries, err := os.ReadDir(q.dir)
	if err != nil {
		// Kein Verzeichnis heißt: nichts zu tun
		if !os.IsNotExist(err) {
			log.Errorf("Failed to list offline queue directory '%s': %v", q.dir, err)
		}
		return 0
	}

	var names []string
	for _, e := range entries {
		if isQueueFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return 0
	}
	sort.Strings(names)

	log.Infof("Processing offline queue: %d items", len(names))
	synced := 0

	for _, name := range names {
		path := filepath.Join(q.dir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			log.Errorf("Failed to read queue file '%s': %v", name, err)
			continue
		}

		var item Item
		if err := json.Unmarshal(data, &item); err != nil {
			log.Errorf("Corrupt queue file '%s', removing: %v", name, err)
			q.remove(path)
			continue
		}

		imageData, err := base64.StdEncoding.DecodeString(item.ImageB64)
		if err != nil {
			log.Errorf("Undecodable image in queue file '%s', removing: %v", name, err)
			q.remove(path)
			continue
		}

		if err := sender.SendQueued(imageData); err != nil {
			log.Warnf("Failed to sync queue item '%s': %v", name, err)
			item.RetryCount++
			if updated, err := json.Marshal(item); err == nil {
				if err := os.WriteFile(path, updated, 0644); err != nil {
					log.Debugf("Failed to update retry count for '%s': %v", name, err)
				}
			}
			continue
		}

		q.remove(path)
		synced++
		log.Infof("Synced queued item %s", name)
	}

	return synced
}

func (q *Queue) remove(path string) {
	if err := os.Remove(path); err != nil {
		log.Errorf("Failed to remove queue file '%s': %v", path, err)
	}
}

func isQueueFile(name string) bool {
	return strings.HasPrefix(name, "req_") && strings.HasSuffix(name, ".json")
}
