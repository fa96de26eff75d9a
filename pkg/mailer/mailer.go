package mailer

import (
	"context"
	"errors"
	"strings"
)

// Address is a named mailbox.
type Address struct {
	Name  string
	Email string
}

// Message is a single outbound email.
type Message struct {
	To      []Address
	Subject string
	Text    string
	HTML    string
}

// Valid reports whether the message has a recipient and some content.
func (m Message) Valid() bool {
	if len(m.To) == 0 {
		return false
	}
	for _, to := range m.To {
		if strings.TrimSpace(to.Email) == "" {
			return false
		}
	}
	return m.Text != "" || m.HTML != ""
}

// ErrInvalidMessage is returned for messages without recipients or content.
var ErrInvalidMessage = errors.New("mailer: message has no recipient or content")

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
