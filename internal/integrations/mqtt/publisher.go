package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"absensi-kiosk-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher veröffentlicht Anwesenheitsereignisse und den Gerätestatus
// auf einem MQTT-Broker. Ein nil-Publisher ist gültig und verwirft alle
// Aufrufe, damit die Aufrufer keine Enabled-Prüfung brauchen.
type Publisher struct {
	config      config.MQTTConfig
	client      mqtt.Client
	isConnected bool
}

// EventPayload ist die Nachricht für ein einzelnes Anwesenheitsereignis
type EventPayload struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	EventType string    `json:"event_type"`
	Late      bool      `json:"late"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPublisher erstellt einen neuen Publisher; bei deaktiviertem MQTT
// wird nil geliefert
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	if !cfg.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}
	return &Publisher{config: cfg}
}

// Start verbindet den Publisher mit dem Broker
func (p *Publisher) Start() error {
	if p == nil {
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetOnConnectHandler(p.onConnectHandler)
	opts.SetConnectionLostHandler(p.connectionLostHandler)

	// Letzter Wille: der Broker meldet das Gerät offline, wenn die
	// Verbindung unangekündigt abreißt
	opts.SetWill(p.availabilityTopic(), "offline", 1, true)

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	p.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	return nil
}

// Stop beendet den Publisher und meldet das Gerät offline
func (p *Publisher) Stop() {
	if p == nil || p.client == nil || !p.client.IsConnected() {
		return
	}
	log.Info("Disconnecting MQTT publisher...")
	p.publish(p.availabilityTopic(), "offline", true)
	p.client.Disconnect(250) // 250ms Wartezeit
	p.isConnected = false
}

// onConnectHandler wird bei (Wieder-)Verbindung aufgerufen
func (p *Publisher) onConnectHandler(client mqtt.Client) {
	p.isConnected = true
	log.Info("MQTT publisher connected successfully")
	p.publish(p.availabilityTopic(), "online", true)
}

// connectionLostHandler wird bei Verbindungsabbruch aufgerufen
func (p *Publisher) connectionLostHandler(client mqtt.Client, err error) {
	p.isConnected = false
	log.Warnf("MQTT connection lost: %v", err)
}

// PublishEvent veröffentlicht ein Anwesenheitsereignis
func (p *Publisher) PublishEvent(payload EventPayload) {
	if p == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Failed to marshal MQTT event payload: %v", err)
		return
	}
	p.publish(p.config.BaseTopic+"/event", string(data), false)
}

// PublishConnectionState veröffentlicht den Zustand der Verbindung zum
// Erkennungsdienst (nicht zu verwechseln mit der Broker-Verbindung)
func (p *Publisher) PublishConnectionState(online bool) {
	if p == nil {
		return
	}
	state := "offline"
	if online {
		state = "online"
	}
	p.publish(p.config.BaseTopic+"/backend", state, true)
}

// publish sendet eine Nachricht mit QoS 1
func (p *Publisher) publish(topic, payload string, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		log.Debugf("MQTT not connected, dropping message for topic '%s'", topic)
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Errorf("Failed to publish MQTT message to '%s': %v", topic, token.Error())
	}
}

func (p *Publisher) availabilityTopic() string {
	return p.config.BaseTopic + "/availability"
}
