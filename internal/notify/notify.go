// Package notify publishes saved analyses to downstream systems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/onfert/analyst/internal/config"
	"github.com/onfert/analyst/internal/models"
)

// Publisher announces a saved analysis.
type Publisher interface {
	Publish(ctx context.Context, a *models.SavedAnalysis) error
	Close() error
}

// Noop discards every notification.
type Noop struct{}

func (Noop) Publish(context.Context, *models.SavedAnalysis) error { return nil }
func (Noop) Close() error                                         { return nil }

// Message is the payload published for a saved analysis. The image preview
// is left out to keep messages small.
type Message struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Crop       string    `json:"crop"`
	SoilType   string    `json:"soilType"`
	PH         float64   `json:"ph"`
	Nitrogen   float64   `json:"nitrogen"`
	Phosphorus float64   `json:"phosphorus"`
	Potassium  float64   `json:"potassium"`
	Product    string    `json:"productRecommendation"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
}

// NewMessage builds the payload for a.
func NewMessage(a *models.SavedAnalysis) Message {
	return Message{
		ID:         a.ID,
		Timestamp:  a.Timestamp,
		Crop:       a.SoilData.Crop,
		SoilType:   a.SoilData.SoilType,
		PH:         a.SoilData.PH,
		Nitrogen:   a.SoilData.Nitrogen,
		Phosphorus: a.SoilData.Phosphorus,
		Potassium:  a.SoilData.Potassium,
		Product:    string(a.Result.ProductRecommendation),
		Confidence: a.Result.Confidence,
		Reasoning:  a.Result.Reasoning,
	}
}

// MQTTPublisher publishes to an MQTT broker.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// New returns an MQTT publisher when a broker is configured and Noop
// otherwise.
func New(ctx context.Context, cfg config.MQTTConfig, logger *slog.Logger) (Publisher, error) {
	if cfg.Broker == "" {
		return Noop{}, nil
	}
	return NewMQTTPublisher(ctx, cfg, logger)
}

// NewMQTTPublisher connects to the configured broker.
func NewMQTTPublisher(ctx context.Context, cfg config.MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "notify"), slog.String("broker", cfg.Broker))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection to MQTT broker lost", slog.Any("error", err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}

	return newMQTTPublisher(client, cfg.Topic, logger), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{client: client, topic: topic, logger: logger}
}

// Publish sends the analysis as JSON with QoS 1.
func (p *MQTTPublisher) Publish(ctx context.Context, a *models.SavedAnalysis) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}
	payload, err := json.Marshal(NewMessage(a))
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	p.logger.Debug("published analysis", slog.String("topic", p.topic), slog.String("id", a.ID))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
