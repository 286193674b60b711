package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

// Subjects. Each ends with the device id.
const (
	SubjectDetection    = "storedetect.detection."
	SubjectConfirmation = "storedetect.confirmation."
	SubjectPosition     = "storedetect.position."
)

// DetectionEvent is published after every completed detection cycle.
type DetectionEvent struct {
	Type     string                  `json:"type"`
	DeviceID string                  `json:"device_id"`
	Result   *domain.DetectionResult `json:"result"`
}

// ConfirmationEvent is published when a store is confirmed or selected.
type ConfirmationEvent struct {
	Type        string                 `json:"type"`
	DeviceID    string                 `json:"device_id"`
	Store       *domain.Store          `json:"store"`
	Method      domain.DetectionMethod `json:"method"`
	ConfirmedAt time.Time              `json:"confirmed_at"`
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	streams := []nats.StreamConfig{
		{
			Name:      "STOREDETECT_EVENTS",
			Subjects:  []string{SubjectDetection + ">", SubjectConfirmation + ">"},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "STOREDETECT_POSITIONS",
			Subjects:  []string{SubjectPosition + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    10 * time.Minute,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishDetection(ctx context.Context, deviceID string, result *domain.DetectionResult) error {
	data, err := json.Marshal(DetectionEvent{Type: "detection", DeviceID: deviceID, Result: result})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectDetection+deviceID, data, nats.Context(ctx))
	return err
}

func (p *Publisher) PublishConfirmation(ctx context.Context, deviceID string, store *domain.Store, method domain.DetectionMethod) error {
	data, err := json.Marshal(ConfirmationEvent{
		Type:        "confirmation",
		DeviceID:    deviceID,
		Store:       store,
		Method:      method,
		ConfirmedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectConfirmation+deviceID, data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
