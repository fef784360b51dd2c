package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/logger"
	"throttle-quadrant/internal/types"
)

const mqttPublishTimeout = 2 * time.Second

// MQTTPublisher publishes controller state as JSON. Stage and calibration
// are retained so late subscribers see the current values.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	logger *logger.Logger
}

type stagePayload struct {
	Stage types.Stage `json:"stage"`
	Time  string      `json:"time"`
}

type calibrationPayload struct {
	Bounds []axis.Bounds `json:"bounds"`
	Time   string        `json:"time"`
}

// ConnectMQTT connects to broker and returns a publisher rooted at prefix.
func ConnectMQTT(broker, clientID, prefix string, l *logger.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)

	l.Infof("Connecting to MQTT broker %s", broker)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", token.Error())
	}
	return NewMQTTPublisher(client, prefix, l), nil
}

// NewMQTTPublisher wraps an already connected client.
func NewMQTTPublisher(client mqtt.Client, prefix string, l *logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: l,
	}
}

func (m *MQTTPublisher) topic(name string) string {
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

func (m *MQTTPublisher) publish(name string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic(name), 0, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", m.topic(name))
	}
	return token.Error()
}

func (m *MQTTPublisher) PublishStage(stage types.Stage) error {
	return m.publish("stage", true, stagePayload{
		Stage: stage,
		Time:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (m *MQTTPublisher) PublishCalibration(bounds []axis.Bounds) error {
	return m.publish("calibration", true, calibrationPayload{
		Bounds: bounds,
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (m *MQTTPublisher) PublishSnapshot(s types.Snapshot) error {
	return m.publish("report", false, s)
}

func (m *MQTTPublisher) Close() error {
	m.client.Disconnect(250)
	return nil
}
