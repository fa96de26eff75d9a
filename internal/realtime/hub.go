package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
)

// StatsRecorder receives live session gauges.
type StatsRecorder interface {
	SetRealtimeStats(sessions, rooms int)
	RecordSlowConsumer()
}

// Hub tracks live sessions and their room memberships.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Session]struct{}
	sessions map[*Session]map[string]struct{}
	stats    StatsRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewHub builds an empty hub.
func NewHub(stats StatsRecorder, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session]map[string]struct{}),
		stats:    stats,
		logger:   logger,
		now:      time.Now,
	}
}

// Register adds an authenticated session and joins its identity rooms.
func (h *Hub) Register(s *Session) []string {
	rooms := models.RoomsFor(s.identity)
	h.mu.Lock()
	h.sessions[s] = make(map[string]struct{}, len(rooms))
	for _, room := range rooms {
		h.joinLocked(s, room)
	}
	h.mu.Unlock()
	h.publish()
	return rooms
}

// Unregister removes the session from every room.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	for room := range h.sessions[s] {
		h.leaveLocked(s, room)
	}
	delete(h.sessions, s)
	h.mu.Unlock()
	h.publish()
}

// Join adds a registered session to room.
func (h *Hub) Join(s *Session, room string) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		h.joinLocked(s, room)
	}
	h.mu.Unlock()
	h.publish()
}

// Leave removes the session from room.
func (h *Hub) Leave(s *Session, room string) {
	h.mu.Lock()
	h.leaveLocked(s, room)
	h.mu.Unlock()
	h.publish()
}

// InRoom reports whether the session is a member of room.
func (h *Hub) InRoom(s *Session, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][s]
	return ok
}

// SendToUser delivers to every live session of userID and returns how many were reached.
func (h *Hub) SendToUser(userID, event string, payload interface{}) int {
	return h.BroadcastToRoom(models.UserRoom(userID), event, payload)
}

// BroadcastToRoom fans event out to every session in room. Sessions whose queue is
// full are closed as slow consumers.
func (h *Hub) BroadcastToRoom(room, event string, payload interface{}) int {
	data, err := h.encode(event, payload)
	if err != nil {
		h.logger.Error("realtime payload not encodable", zap.String("event", event), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	members := make([]*Session, 0, len(h.rooms[room]))
	for s := range h.rooms[room] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		if s.enqueue(data) {
			delivered++
			continue
		}
		h.dropSlow(s, room)
	}
	return delivered
}

// Emit sends event to a single session.
func (h *Hub) Emit(s *Session, event string, payload interface{}) bool {
	data, err := h.encode(event, payload)
	if err != nil {
		h.logger.Error("realtime payload not encodable", zap.String("event", event), zap.Error(err))
		return false
	}
	if s.enqueue(data) {
		return true
	}
	h.dropSlow(s, "")
	return false
}

// Stats returns the number of live sessions and non-empty rooms.
func (h *Hub) Stats() (sessions, rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions), len(h.rooms)
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		s.Close()
		h.Unregister(s)
	}
}

func (h *Hub) dropSlow(s *Session, room string) {
	if s.Closed() {
		return
	}
	h.logger.Warn("closing slow realtime consumer", zap.String("session_id", s.id), zap.String("user_id", s.identity.UserID), zap.String("room", room))
	if h.stats != nil {
		h.stats.RecordSlowConsumer()
	}
	s.Close()
	h.Unregister(s)
}

func (h *Hub) encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: payload, Timestamp: h.now().UTC()})
}

func (h *Hub) joinLocked(s *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	if joined, ok := h.sessions[s]; ok {
		joined[room] = struct{}{}
	}
}

func (h *Hub) leaveLocked(s *Session, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined, ok := h.sessions[s]; ok {
		delete(joined, room)
	}
}

func (h *Hub) publish() {
	if h.stats == nil {
		return
	}
	sessions, rooms := h.Stats()
	h.stats.SetRealtimeStats(sessions, rooms)
}
