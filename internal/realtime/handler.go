package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/service"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/response"
)

const maxAssignmentMessageRunes = 2000

// CredentialVerifier resolves a bearer token into an identity.
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (*models.Identity, error)
}

// RoomAuthorizer decides whether an identity may join a private room.
type RoomAuthorizer interface {
	Assignment(ctx context.Context, identity models.Identity, assignmentID string) (*models.Assignment, error)
	Lesson(ctx context.Context, identity models.Identity, bookingID string) (*models.Booking, error)
}

// LessonStatusUpdater applies lesson status changes requested over the socket.
type LessonStatusUpdater interface {
	UpdateStatus(ctx context.Context, actor *models.Identity, id string, req service.UpdateBookingStatusRequest) (*models.Booking, error)
}

// Inbox exposes the notification operations available to connected clients.
type Inbox interface {
	ListForUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	SendAssignmentMessage(ctx context.Context, assignment *models.Assignment, sender *models.Identity, text string) error
}

// Handler upgrades HTTP requests into realtime sessions.
type Handler struct {
	hub      *Hub
	verifier CredentialVerifier
	access   RoomAuthorizer
	lessons  LessonStatusUpdater
	inbox    Inbox
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler wires the websocket endpoint.
func NewHandler(hub *Hub, verifier CredentialVerifier, access RoomAuthorizer, lessons LessonStatusUpdater, inbox Inbox, originAllowed func(string) bool, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	h := &Handler{
		hub:      hub,
		verifier: verifier,
		access:   access,
		lessons:  lessons,
		inbox:    inbox,
		cfg:      cfg,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			if originAllowed == nil {
				return true
			}
			return originAllowed(r.Header.Get("Origin"))
		},
	}
	return h
}

// Serve godoc
// @Summary Open a realtime session
// @Description Upgrades to a websocket. The token may be passed as ?token=, a bearer header, or an authenticate event sent first.
// @Tags Realtime
// @Param token query string false "Access token"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *Handler) Serve(c *gin.Context) {
	var identity *models.Identity
	if token := requestToken(c.Request); token != "" {
		verified, err := h.verifier.VerifyCredential(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			return
		}
		identity = verified
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	if identity == nil {
		identity, err = h.awaitAuthentication(conn)
		if err != nil {
			h.logger.Debug("websocket authentication failed", zap.Error(err))
			_ = conn.Close()
			return
		}
	}

	session := newSession(conn, *identity, h.cfg, h.logger)
	rooms := h.hub.Register(session)
	go session.writePump()
	h.hub.Emit(session, EventAuthenticated, gin.H{
		"session_id": session.ID(),
		"user_id":    identity.UserID,
		"role":       identity.Role,
		"rooms":      rooms,
	})
	session.logger.Info("realtime session opened", zap.String("role", string(identity.Role)))

	h.readPump(session)

	h.hub.Unregister(session)
	session.Close()
	session.logger.Info("realtime session closed")
}

// awaitAuthentication requires the first frame to be an authenticate event carrying
// a valid token. Nothing else is written until it arrives.
func (h *Handler) awaitAuthentication(conn *websocket.Conn) (*models.Identity, error) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	var msg Inbound
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	reject := func(err error) (*models.Identity, error) {
		_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		_ = conn.WriteJSON(Outbound{Event: EventError, Data: ErrorPayload{Event: EventAuthenticate, Message: appErrors.FromError(err).Message}, Timestamp: time.Now().UTC()})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"), time.Now().Add(h.cfg.WriteTimeout))
		return nil, err
	}
	if msg.Event != EventAuthenticate {
		return reject(appErrors.Clone(appErrors.ErrUnauthorized, "authentication required"))
	}
	var req authRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		return reject(appErrors.Clone(appErrors.ErrUnauthorized, "token is required"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.HandshakeTimeout)
	defer cancel()
	identity, err := h.verifier.VerifyCredential(ctx, req.Token)
	if err != nil {
		return reject(err)
	}
	return identity, nil
}

func (h *Handler) readPump(s *Session) {
	_ = s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		// Only transport errors end the session; a frame that does not decode is answered.
		var msg Inbound
		if err := json.Unmarshal(frame, &msg); err != nil {
			h.hub.Emit(s, EventError, ErrorPayload{Message: "malformed message"})
			continue
		}
		h.dispatch(s, msg)
	}
}

func (h *Handler) dispatch(s *Session, msg Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.HandshakeTimeout)
	defer cancel()

	var err error
	switch msg.Event {
	case EventAuthenticate:
		h.hub.Emit(s, EventAuthenticated, gin.H{"session_id": s.ID(), "user_id": s.identity.UserID, "role": s.identity.Role})
	case EventJoinAssignment:
		err = h.joinAssignment(ctx, s, idFrom(msg.Data, "assignment_id"))
	case EventLeaveAssignment:
		id := idFrom(msg.Data, "assignment_id")
		h.hub.Leave(s, models.AssignmentRoom(id))
		h.hub.Emit(s, EventLeftAssignment, gin.H{"assignment_id": id})
	case EventJoinLesson:
		err = h.joinLesson(ctx, s, idFrom(msg.Data, "lesson_id"))
	case EventLeaveLesson:
		id := idFrom(msg.Data, "lesson_id")
		h.hub.Leave(s, models.LessonRoom(id))
		h.hub.Emit(s, EventLeftLesson, gin.H{"lesson_id": id})
	case EventSendAssignmentMessage:
		err = h.sendAssignmentMessage(ctx, s, msg.Data)
	case EventLessonStatusUpdate:
		err = h.updateLessonStatus(ctx, s, msg.Data)
	case EventMarkNotificationRead:
		id := idFrom(msg.Data, "notification_id")
		if err = h.inbox.MarkRead(ctx, s.identity.UserID, id); err == nil {
			h.hub.Emit(s, EventNotificationRead, gin.H{"notification_id": id})
		}
	case EventGetNotifications:
		err = h.listNotifications(ctx, s, msg.Data)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "unknown event")
	}
	if err != nil {
		h.hub.Emit(s, EventError, ErrorPayload{Event: msg.Event, Message: appErrors.FromError(err).Message})
	}
}

func (h *Handler) joinAssignment(ctx context.Context, s *Session, id string) error {
	if _, err := h.access.Assignment(ctx, s.identity, id); err != nil {
		return err
	}
	h.hub.Join(s, models.AssignmentRoom(id))
	h.hub.Emit(s, EventJoinedAssignment, gin.H{"assignment_id": id})
	return nil
}

func (h *Handler) joinLesson(ctx context.Context, s *Session, id string) error {
	if _, err := h.access.Lesson(ctx, s.identity, id); err != nil {
		return err
	}
	h.hub.Join(s, models.LessonRoom(id))
	h.hub.Emit(s, EventJoinedLesson, gin.H{"lesson_id": id})
	return nil
}

func (h *Handler) sendAssignmentMessage(ctx context.Context, s *Session, raw json.RawMessage) error {
	var req assignmentMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "malformed message")
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return appErrors.Clone(appErrors.ErrValidation, "message is required")
	}
	if utf8.RuneCountInString(text) > maxAssignmentMessageRunes {
		return appErrors.Clone(appErrors.ErrValidation, "message is too long")
	}
	assignment, err := h.access.Assignment(ctx, s.identity, req.AssignmentID)
	if err != nil {
		return err
	}

	h.hub.BroadcastToRoom(models.AssignmentRoom(assignment.ID), EventAssignmentMessage, AssignmentMessage{
		ID:           uuid.NewString(),
		AssignmentID: assignment.ID,
		SenderID:     s.identity.UserID,
		SenderName:   s.identity.FullName,
		Message:      text,
		Timestamp:    time.Now().UTC(),
	})

	sender := s.identity
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), h.cfg.HandshakeTimeout)
		defer cancel()
		if err := h.inbox.SendAssignmentMessage(notifyCtx, assignment, &sender, text); err != nil {
			s.logger.Warn("assignment message notice failed", zap.String("assignment_id", assignment.ID), zap.Error(err))
		}
	}()
	return nil
}

func (h *Handler) updateLessonStatus(ctx context.Context, s *Session, raw json.RawMessage) error {
	if s.identity.Role != models.RoleInstructor && !s.identity.Role.Elevated() {
		return appErrors.Clone(appErrors.ErrForbidden, "only instructors can update lesson status")
	}
	var req lessonStatusRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "malformed message")
	}
	actor := s.identity
	_, err := h.lessons.UpdateStatus(ctx, &actor, req.LessonID, service.UpdateBookingStatusRequest{
		Status: models.BookingStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		Notes:  req.Notes,
	})
	return err
}

func (h *Handler) listNotifications(ctx context.Context, s *Session, raw json.RawMessage) error {
	var filter struct {
		UnreadOnly bool `json:"unread_only"`
		Page       int  `json:"page"`
		PageSize   int  `json:"page_size"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &filter)
	}
	items, pagination, unread, err := h.inbox.ListForUser(ctx, s.identity.UserID, models.NotificationFilter{
		UnreadOnly: filter.UnreadOnly,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	})
	if err != nil {
		return err
	}
	h.hub.Emit(s, EventNotifications, gin.H{"items": items, "pagination": pagination, "unread": unread})
	return nil
}

func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
