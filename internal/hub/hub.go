// internal/hub/hub.go
// Presence hub: the registry of connected players, their last known state,
// and fan-out of state changes to every other connection.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/isaac-art/dinamap/internal/logger"
	"github.com/isaac-art/dinamap/internal/message"
)

const defaultMaxNotifications = 64

var (
	ErrHubClosed     = errors.New("hub is closed")
	ErrUnknownClient = errors.New("client is not connected")
)

// Connection is one live stream to a client. Send must not block on the
// network; implementations queue the frame and report an error when the
// stream is closed or cannot keep up. Close must be safe to call repeatedly.
type Connection interface {
	Send(data []byte) error
	Close() error
}

// Hub owns the connection and player state registries. All reads and writes
// of the registries happen under mu; sends happen outside it, on a snapshot
// of the targets.
type Hub struct {
	mu      sync.Mutex
	conns   map[string]Connection
	players map[string]message.PlayerState
	closed  bool

	publisher Publisher
	Logger    *logger.Logger

	// removals after a failed player_left run detached from Disconnect
	notifyWG  sync.WaitGroup
	notifySem chan struct{}
}

// NewHub creates an empty hub. publisher may be nil, in which case presence
// events are not exported.
func NewHub(publisher Publisher, logger *logger.Logger) *Hub {
	return NewHubWithLimit(publisher, logger, defaultMaxNotifications)
}

// NewHubWithLimit is NewHub with an explicit cap on concurrently running
// follow-up removals.
func NewHubWithLimit(publisher Publisher, logger *logger.Logger, maxNotifications int) *Hub {
	if maxNotifications <= 0 {
		maxNotifications = defaultMaxNotifications
	}
	return &Hub{
		conns:     make(map[string]Connection),
		players:   make(map[string]message.PlayerState),
		publisher: publisher,
		Logger:    logger,
		notifySem: make(chan struct{}, maxNotifications),
	}
}

// Connect registers conn under id, sends it the current players snapshot and
// announces the join to everyone else. A previous connection registered
// under the same id is closed. If the snapshot cannot be sent the hub is
// left unchanged and the error is returned.
func (h *Hub) Connect(id string, conn Connection) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	snapshot, err := json.Marshal(message.PlayersList{
		Type:    message.TypePlayersList,
		Players: h.players,
	})
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("marshal players list: %w", err)
	}
	// Queued before registration so it is the first frame conn receives.
	if err := conn.Send(snapshot); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("send players list to %s: %w", id, err)
	}
	prev := h.conns[id]
	h.conns[id] = conn
	state, hasState := h.players[id]
	h.mu.Unlock()

	if prev != nil && prev != conn {
		h.Logger.LogEvent("info", "player_replaced", id, "")
		prev.Close()
	}

	joined := message.PlayerJoined{Type: message.TypePlayerJoined, UID: id, Data: struct{}{}}
	if hasState {
		joined.Data = state
	}
	h.BroadcastExcept(id, joined)

	h.Logger.LogEvent("info", "player_joined", id, "")
	h.publishEvent(SubjectJoined, message.Event{Type: message.TypePlayerJoined, UID: id})
	return nil
}

// Disconnect removes id from both registries and queues player_left on every
// remaining connection before returning. It is a no-op when id is not
// registered.
func (h *Hub) Disconnect(id string) {
	h.remove(id, nil)
}

// Release is Disconnect for a specific connection: it only removes id when
// conn is still the registered connection, so a superseded stream shutting
// down does not evict its replacement.
func (h *Hub) Release(id string, conn Connection) {
	h.remove(id, conn)
}

func (h *Hub) remove(id string, conn Connection) bool {
	h.mu.Lock()
	current, ok := h.conns[id]
	if !ok || (conn != nil && current != conn) {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, id)
	delete(h.players, id)
	// Taken before unlocking so a reconnect under the same id can only be
	// announced after player_left has been queued.
	targets := h.targetsLocked("", false)
	h.mu.Unlock()

	current.Close()
	h.Logger.LogEvent("info", "player_left", id, "")
	h.publishEvent(SubjectLeft, message.Event{Type: message.TypePlayerLeft, UID: id})

	data, err := json.Marshal(message.PlayerLeft{Type: message.TypePlayerLeft, UID: id})
	if err != nil {
		h.Logger.Errorf("Error marshaling player_left: %v", err)
		return true
	}
	h.removeLater(h.sendAll(targets, data))
	return true
}

// removeLater disconnects connections whose player_left send failed. It runs
// detached from the caller of Disconnect, at most cap(notifySem) at once;
// whatever goes wrong there never reaches that caller.
func (h *Hub) removeLater(failed []target) {
	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	// Added under mu so a concurrent Close cannot start waiting first.
	h.notifyWG.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.notifyWG.Done()
		h.notifySem <- struct{}{}
		defer func() { <-h.notifySem }()
		for _, t := range failed {
			h.remove(t.id, t.conn)
		}
	}()
}

// Flush waits until every removal scheduled by a failed player_left send has
// finished.
func (h *Hub) Flush() {
	h.notifyWG.Wait()
}

// UpdatePlayer replaces the state of id and sends it to every other
// connection. Fields are not merged with the previous state.
func (h *Hub) UpdatePlayer(id string, state message.PlayerState) error {
	if err := h.storeState(id, nil, state); err != nil {
		return err
	}
	h.fanOutUpdate(id, state)
	return nil
}

// storeState records state for id. When conn is not nil the write only
// happens if conn is the connection registered as id.
func (h *Hub) storeState(id string, conn Connection, state message.PlayerState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.conns[id]
	if !ok || (conn != nil && current != conn) {
		return fmt.Errorf("update %s: %w", id, ErrUnknownClient)
	}
	h.players[id] = state
	return nil
}

// fanOutLatest sends the currently stored state of id, provided conn still
// owns it.
func (h *Hub) fanOutLatest(id string, conn Connection) {
	h.mu.Lock()
	state, ok := h.players[id]
	owner := h.conns[id] == conn
	h.mu.Unlock()
	if ok && owner {
		h.fanOutUpdate(id, state)
	}
}

func (h *Hub) fanOutUpdate(id string, state message.PlayerState) {
	h.BroadcastExcept(id, message.PlayerUpdate{
		Type: message.TypePlayerUpdate,
		UID:  id,
		Data: state,
	})
	h.publishEvent(SubjectUpdated, message.Event{Type: message.TypePlayerUpdate, UID: id, Data: &state})
}

// Broadcast sends msg to every connection and returns how many sends
// succeeded. Connections that fail are disconnected afterwards.
func (h *Hub) Broadcast(msg any) int {
	return h.broadcast(msg, "", false)
}

// BroadcastExcept is Broadcast skipping the connection registered as
// excludedID.
func (h *Hub) BroadcastExcept(excludedID string, msg any) int {
	return h.broadcast(msg, excludedID, true)
}

type target struct {
	id   string
	conn Connection
}

func (h *Hub) broadcast(msg any, excludedID string, exclude bool) int {
	data, err := json.Marshal(msg)
	if err != nil {
		h.Logger.Errorf("Error marshaling broadcast message: %v", err)
		return 0
	}

	h.mu.Lock()
	targets := h.targetsLocked(excludedID, exclude)
	h.mu.Unlock()

	failed := h.sendAll(targets, data)
	for _, t := range failed {
		h.remove(t.id, t.conn)
	}
	return len(targets) - len(failed)
}

// targetsLocked snapshots the registered connections. h.mu must be held.
func (h *Hub) targetsLocked(excludedID string, exclude bool) []target {
	targets := make([]target, 0, len(h.conns))
	for id, conn := range h.conns {
		if exclude && id == excludedID {
			continue
		}
		targets = append(targets, target{id: id, conn: conn})
	}
	return targets
}

// sendAll queues data on every target and returns the ones that failed.
func (h *Hub) sendAll(targets []target, data []byte) []target {
	var failed []target
	for _, t := range targets {
		if err := t.conn.Send(data); err != nil {
			h.Logger.LogEvent("warn", "send_failed", t.id, err.Error())
			failed = append(failed, t)
		}
	}
	return failed
}

// Players returns a copy of the player state registry.
func (h *Hub) Players() map[string]message.PlayerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	players := make(map[string]message.PlayerState, len(h.players))
	for id, s := range h.players {
		players[id] = s
	}
	return players
}

// Connected returns the ids of all registered connections.
func (h *Hub) Connected() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close closes every connection, empties the registries and waits for
// pending follow-up removals. Later calls to Connect fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := h.conns
	h.conns = make(map[string]Connection)
	h.players = make(map[string]message.PlayerState)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	h.Flush()
	h.Logger.Infof("Hub closed, dropped %d connections", len(conns))
}
