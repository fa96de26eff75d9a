package mailer

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of sending them. Used in development.
type ConsoleSender struct {
	logger *zap.Logger
}

// NewConsoleSender builds a logging sender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// Send writes the message to the log.
func (s *ConsoleSender) Send(_ context.Context, msg Message) error {
	if !msg.Valid() {
		return ErrInvalidMessage
	}
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, addr.Email)
	}
	s.logger.Info("email",
		zap.Strings("to", to),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}
