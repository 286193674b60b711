package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/storedetect/internal/adapters/nats"
	"github.com/samirrijal/storedetect/internal/core/domain"
	"github.com/samirrijal/storedetect/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to a device's events.
type wsMessage struct {
	Action   string `json:"action"`    // "subscribe" | "unsubscribe"
	DeviceID string `json:"device_id"` // required
	Channel  string `json:"channel"`   // "detection" | "confirmation" | "all" (default: all)
}

// wsSubjects maps a channel onto the NATS subjects of one device.
func wsSubjects(channel, deviceID string) ([]string, bool) {
	switch channel {
	case "", "all":
		return []string{natsadapter.SubjectDetection + deviceID, natsadapter.SubjectConfirmation + deviceID}, true
	case "detection":
		return []string{natsadapter.SubjectDetection + deviceID}, true
	case "confirmation":
		return []string{natsadapter.SubjectConfirmation + deviceID}, true
	default:
		return nil, false
	}
}

// WebSocketHandler returns a handler that upgrades to WebSocket
// and relays a device's detection events to connected clients.
// Clients connect with ?device_id=<id> or send
// {"action":"subscribe","device_id":"<id>","channel":"detection"}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		log := slog.With("remote_addr", c.RemoteAddr().String())
		log.Info("ws client connected")

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(subject string) error {
			if nc == nil {
				return nats.ErrConnectionClosed
			}
			if _, exists := subs[subject]; exists {
				return nil
			}
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			})
			if err != nil {
				return err
			}
			subs[subject] = s
			return nil
		}

		if id := c.Query("device_id"); id != "" {
			if err := domain.ValidateDeviceID(id); err != nil {
				_ = writeJSON(map[string]string{"error": err.Error()})
				return
			}
			subjects, _ := wsSubjects("all", id)
			for _, subject := range subjects {
				if err := subscribe(subject); err != nil {
					log.Warn("ws subscribe failed", "subject", subject, "error", err)
					return
				}
			}
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if err := domain.ValidateDeviceID(m.DeviceID); err != nil {
				_ = writeJSON(map[string]string{"error": err.Error()})
				continue
			}
			subjects, ok := wsSubjects(m.Channel, m.DeviceID)
			if !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				for _, subject := range subjects {
					if err := subscribe(subject); err != nil {
						_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
						continue
					}
					_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})
				}

			case "unsubscribe":
				for _, subject := range subjects {
					if s, exists := subs[subject]; exists {
						_ = s.Unsubscribe()
						delete(subs, subject)
						_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
					} else {
						_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
					}
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Info("ws client disconnected")
	}
}
