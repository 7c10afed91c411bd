package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/config"
	"github.com/ukydev/camperwash/internal/models"
)

// Event types
const (
	TypeStationSubmitted     = "station.submitted"
	TypeStationStatusChanged = "station.status_changed"
	TypeStationDeleted       = "station.deleted"
)

const (
	qosAtLeastOnce = 1
	publishTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
)

// Event is a station lifecycle event
type Event struct {
	Type           string               `json:"type"`
	StationID      string               `json:"stationId"`
	Status         models.StationStatus `json:"status,omitempty"`
	PreviousStatus models.StationStatus `json:"previousStatus,omitempty"`
	OccurredAt     time.Time            `json:"occurredAt"`
}

// Publisher publishes station events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// mqttClient is the subset of mqtt.Client used for publishing
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events as JSON to <prefix>/<type>
type MQTTPublisher struct {
	client mqttClient
	prefix string
	logger *logrus.Logger
}

// ConnectMQTT connects to the broker and returns a publisher
func ConnectMQTT(cfg config.MQTTConfig, logger *logrus.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("mqtt connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return NewMQTTPublisher(client, cfg.TopicPrefix, logger), nil
}

// NewMQTTPublisher wraps a connected client
func NewMQTTPublisher(client mqttClient, prefix string, logger *logrus.Logger) *MQTTPublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger}
}

// Topic returns the topic an event type is published to
func (p *MQTTPublisher) Topic(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "/" + eventType
}

// Publish sends event at QoS 1 and waits for the broker acknowledgement
func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	topic := p.Topic(event.Type)
	token := p.client.Publish(topic, qosAtLeastOnce, false, payload)

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":      topic,
		"station_id": event.StationID,
	}).Debug("event published")
	return nil
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
