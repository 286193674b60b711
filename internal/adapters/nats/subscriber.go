package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/storedetect/internal/adapters/devicefeed"
	"github.com/samirrijal/storedetect/internal/core/domain"
)

// ReportHandler processes one device report.
type ReportHandler func(ctx context.Context, deviceID string, report devicefeed.Report) error

// Subscriber consumes device reports from NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// DeviceFromSubject extracts the device id from a storedetect subject.
func DeviceFromSubject(subject string) (string, error) {
	i := strings.LastIndexByte(subject, '.')
	id := subject[i+1:]
	if err := domain.ValidateDeviceID(id); err != nil {
		return "", err
	}
	return id, nil
}

// SubscribePositionReports delivers reports published on
// storedetect.position.<device>. Malformed messages are terminated, handler
// failures are redelivered up to three times.
func (s *Subscriber) SubscribePositionReports(ctx context.Context, handler ReportHandler) error {
	sub, err := s.js.Subscribe(SubjectPosition+">", func(msg *nats.Msg) {
		deviceID, err := DeviceFromSubject(msg.Subject)
		if err != nil {
			_ = msg.Term()
			return
		}
		var report devicefeed.Report
		if err := json.Unmarshal(msg.Data, &report); err != nil {
			_ = msg.Term()
			return
		}
		if err := handler(ctx, deviceID, report); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("position-processor"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
