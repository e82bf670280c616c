// Package notify publishes desk notices: the outcome of every workflow
// action and the non-blocking warnings raised while loading a service.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a single user-visible message.
type Notice struct {
	Level     Level     `json:"level"`
	ServiceID string    `json:"service_id,omitempty"`
	Action    string    `json:"action,omitempty"`
	Field     string    `json:"field,omitempty"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// Notifier delivers notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier writes notices to logrus.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, n Notice) error {
	entry := log.WithFields(log.Fields{
		"service_id": n.ServiceID,
		"action":     n.Action,
	})
	if n.Field != "" {
		entry = entry.WithField("field", n.Field)
	}
	switch n.Level {
	case LevelError:
		entry.Error(n.Message)
	case LevelWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
	return nil
}

// Multi fans a notice out to several notifiers, joining their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publisher is the part of mqtt.Client the notifier needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes notices as JSON to an MQTT topic. Notices about a
// service go to <topic>/<service id>.
type MQTTNotifier struct {
	client  publisher
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTNotifier connects to broker and returns a notifier publishing under
// topic, along with a function that disconnects it.
func NewMQTTNotifier(broker, clientID, topic string) (*MQTTNotifier, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(15 * time.Second) {
		return nil, nil, fmt.Errorf("mqtt connect to %s: timed out", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}

	log.WithFields(log.Fields{"broker": broker, "topic": topic}).Info("Connected to MQTT broker")
	return newMQTTNotifier(client, topic), func() { client.Disconnect(250) }, nil
}

func newMQTTNotifier(p publisher, topic string) *MQTTNotifier {
	return &MQTTNotifier{client: p, topic: topic, qos: 1, timeout: 5 * time.Second}
}

// Topic returns the topic a notice is published on.
func (m *MQTTNotifier) Topic(n Notice) string {
	if n.ServiceID == "" {
		return m.topic
	}
	return m.topic + "/" + n.ServiceID
}

// Notify implements Notifier.
func (m *MQTTNotifier) Notify(ctx context.Context, n Notice) error {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	tok := m.client.Publish(m.Topic(n), m.qos, false, payload)
	timeout := m.timeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish to %s: timed out", m.Topic(n))
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", m.Topic(n), err)
	}
	return nil
}
