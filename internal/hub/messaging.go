// internal/hub/messaging.go
package hub

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/isaac-art/dinamap/internal/message"
)

var pongFrame = mustMarshal(message.Pong{Type: message.TypePong})

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// HandleClientMessage dispatches one inbound frame from the client
// registered as id. Malformed frames and unknown types are ignored. The
// returned error means the stream to conn is no longer usable.
func (h *Hub) HandleClientMessage(id string, conn Connection, raw []byte) error {
	var msg message.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.Logger.Debugf("Ignoring malformed message from %s: %v", id, err)
		return nil
	}

	switch msg.Type {
	case message.TypePlayerUpdate:
		st := msg.State()
		// A superseded or already removed stream may still deliver a final
		// update; it must not overwrite the state of the current one.
		if err := h.storeState(id, conn, st); err != nil {
			if errors.Is(err, ErrUnknownClient) {
				return nil
			}
			return err
		}
		if c, ok := conn.(*Client); ok && !c.allowUpdate() {
			// The state is stored; observers get the latest one when the
			// limiter has a token again.
			c.deferUpdate(func() { h.fanOutLatest(id, c) })
			return nil
		}
		h.fanOutUpdate(id, st)
	case message.TypePing:
		if err := conn.Send(pongFrame); err != nil {
			return fmt.Errorf("send pong to %s: %w", id, err)
		}
	default:
		h.Logger.Debugf("Ignoring message of type %q from %s", msg.Type, id)
	}
	return nil
}
