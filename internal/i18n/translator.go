package i18n

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Nachrichten-IDs der Begrüßungstexte
const (
	MsgGreetingSingle = "greeting_single"
	MsgGreetingPair   = "greeting_pair"
	MsgGreetingGroup  = "greeting_group"
	MsgFarewellSingle = "farewell_single"
	MsgFarewellPair   = "farewell_pair"
	MsgFarewellGroup  = "farewell_group"
	MsgLateNotice     = "late_notice"
	MsgOfflineQueued  = "offline_queued"
)

// Translator hält die Übersetzungsfunktionalität für Begrüßungs- und
// Statustexte des Kiosks
type Translator struct {
	bundle    *goi18n.Bundle
	localizer *goi18n.Localizer
}

// defaultMessages sind die eingebauten indonesischen Texte; sie greifen,
// wenn keine Locale-Dateien vorhanden sind
var defaultMessages = []*goi18n.Message{
	{ID: MsgGreetingSingle, Other: "Selamat datang, {{.Name}}!"},
	{ID: MsgGreetingPair, Other: "Selamat datang, {{.First}} dan {{.Second}}!"},
	{ID: MsgGreetingGroup, Other: "Selamat datang semuanya!"},
	{ID: MsgFarewellSingle, Other: "Sampai jumpa, {{.Name}}!"},
	{ID: MsgFarewellPair, Other: "Sampai jumpa, {{.First}} dan {{.Second}}!"},
	{ID: MsgFarewellGroup, Other: "Sampai jumpa semuanya!"},
	{ID: MsgLateNotice, Other: "Anda terlambat, harap datang tepat waktu."},
	{ID: MsgOfflineQueued, Other: "Sistem sedang offline. Data disimpan dan akan dikirim nanti."},
}

// NewTranslator erstellt einen Übersetzer und lädt alle JSON-Locale-Dateien
// aus dem angegebenen Verzeichnis. Ein fehlendes Verzeichnis ist kein
// Fehler: dann gelten die eingebauten Standardtexte.
func NewTranslator(localesDir, defaultLanguage string) (*Translator, error) {
	if defaultLanguage == "" {
		defaultLanguage = "id"
	}

	tag, err := language.Parse(defaultLanguage)
	if err != nil {
		log.Warnf("Invalid default language '%s', falling back to 'id': %v", defaultLanguage, err)
		tag = language.Indonesian
	}

	bundle := goi18n.NewBundle(language.Indonesian)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	if err := bundle.AddMessages(language.Indonesian, defaultMessages...); err != nil {
		return nil, err
	}

	if localesDir != "" {
		entries, err := os.ReadDir(localesDir)
		if err != nil {
			log.Warnf("Locales directory '%s' not readable, using built-in messages: %v", localesDir, err)
		} else {
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
					continue
				}
				path := filepath.Join(localesDir, entry.Name())
				if _, err := bundle.LoadMessageFile(path); err != nil {
					log.Warnf("Failed to load locale file '%s': %v", path, err)
				}
			}
		}
	}

	return &Translator{
		bundle:    bundle,
		localizer: goi18n.NewLocalizer(bundle, tag.String()),
	}, nil
}

// NewTranslatorFromDefaults erstellt einen Übersetzer nur mit den
// eingebauten Texten
func NewTranslatorFromDefaults() *Translator {
	t, _ := NewTranslator("", "id")
	return t
}

// T übersetzt eine Nachricht mit optionalen Template-Daten. Unbekannte
// IDs liefern die ID selbst zurück, damit das UI nie leer bleibt.
func (t *Translator) T(messageID string, data map[string]interface{}) string {
	msg, err := t.localizer.Localize(&goi18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		log.Debugf("Missing translation for '%s': %v", messageID, err)
		return messageID
	}
	return msg
}
