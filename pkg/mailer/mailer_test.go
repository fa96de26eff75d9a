package mailer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendGridSenderPostsMail(t *testing.T) {
	var body map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendGridSender("key-1", srv.URL, "Driving School", "School", "no-reply@school.test")
	err := sender.Send(context.Background(), Message{
		To:      []Address{{Name: "Lea", Email: "lea@example.com"}},
		Subject: "Lesson Starting Soon",
		Text:    "Your lesson starts in 30 minutes",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer key-1", auth)

	personalizations := body["personalizations"].([]interface{})
	first := personalizations[0].(map[string]interface{})
	assert.Equal(t, "[Driving School] Lesson Starting Soon", first["subject"])
}

func TestSendGridSenderReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	sender := NewSendGridSender("bad", srv.URL, "", "School", "no-reply@school.test")
	err := sender.Send(context.Background(), Message{To: []Address{{Email: "a@b.c"}}, Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestConsoleSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sender := NewConsoleSender(zap.New(core))

	require.NoError(t, sender.Send(context.Background(), Message{To: []Address{{Email: "a@b.c"}}, Subject: "s", Text: "t"}))
	assert.ErrorIs(t, sender.Send(context.Background(), Message{Subject: "s"}), ErrInvalidMessage)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "email", logs.All()[0].Message)
}
