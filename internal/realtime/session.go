package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
)

// Config tunes websocket sessions.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration
	SendBuffer       int
	MaxMessageBytes  int64
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 8192
	}
	return c
}

// Session is one authenticated websocket connection. Outbound messages go through a
// bounded queue drained by a single writer goroutine.
type Session struct {
	id       string
	conn     *websocket.Conn
	identity models.Identity
	cfg      Config
	logger   *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, identity models.Identity, cfg Config, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		identity: identity,
		cfg:      cfg,
		logger:   logger.With(zap.String("session_id", id), zap.String("user_id", identity.UserID)),
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Identity returns the authenticated caller.
func (s *Session) Identity() models.Identity { return s.identity }

// enqueue queues data without blocking. It returns false when the session is closed
// or its queue is full.
func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// writePump is the only goroutine writing to the socket after authentication.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case <-s.done:
			if s.conn != nil {
				_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(s.cfg.WriteTimeout))
			}
			return
		case data := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}
