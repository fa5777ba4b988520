// internal/hub/nats.go
package hub

import (
	"encoding/json"
	"time"

	"github.com/isaac-art/dinamap/internal/message"
	"github.com/nats-io/nats.go"
)

const (
	PresenceStream    = "PRESENCE"
	SubjectJoined     = "presence.joined"
	SubjectUpdated    = "presence.updated"
	SubjectLeft       = "presence.left"
	presenceRetention = 30 * time.Minute
)

// Publisher receives presence events. Publish must not block on delivery.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher exports presence events to NATS. Events go to JetStream
// when a context is available and to core NATS otherwise.
type NATSPublisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

func NewNATSPublisher(nc *nats.Conn, js nats.JetStreamContext) *NATSPublisher {
	return &NATSPublisher{nc: nc, js: js}
}

func (p *NATSPublisher) Publish(subject string, data []byte) error {
	if p.js != nil {
		_, err := p.js.PublishAsync(subject, data)
		return err
	}
	return p.nc.Publish(subject, data)
}

// SetupPresenceStream creates or updates the stream holding presence events.
func SetupPresenceStream(js nats.JetStreamContext) error {
	streamConfig := &nats.StreamConfig{
		Name:     PresenceStream,
		Subjects: []string{"presence.>"},
		Storage:  nats.FileStorage,
		MaxAge:   presenceRetention,
	}
	if _, err := js.StreamInfo(streamConfig.Name); err != nil {
		_, err = js.AddStream(streamConfig)
		return err
	}
	_, err := js.UpdateStream(streamConfig)
	return err
}

// publishEvent exports a presence event if a publisher is configured.
func (h *Hub) publishEvent(subject string, event message.Event) {
	if h.publisher == nil {
		return
	}
	event.Timestamp = time.Now().Unix()
	data, err := json.Marshal(event)
	if err != nil {
		h.Logger.Errorf("Failed to marshal presence event: %v", err)
		return
	}
	if err := h.publisher.Publish(subject, data); err != nil {
		h.Logger.Errorf("Failed to publish %s for %s: %v", subject, event.UID, err)
	}
}
