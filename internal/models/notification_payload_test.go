package models

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	raw, err := EncodePayload(LessonReminderPayload{BookingID: "b-1", ScheduledAt: at, Offset: "30m0s"})
	require.NoError(t, err)

	decoded, err := DecodePayload(NotificationLessonReminder, raw)
	require.NoError(t, err)
	reminder, ok := decoded.(*LessonReminderPayload)
	require.True(t, ok)
	assert.Equal(t, "b-1", reminder.BookingID)
	assert.True(t, reminder.ScheduledAt.Equal(at))
}

func TestDecodePayloadRejectsMismatchedType(t *testing.T) {
	raw, err := EncodePayload(AssignmentPayload{AssignmentID: "a-1"})
	require.NoError(t, err)

	_, err = DecodePayload(NotificationLessonReminder, raw)
	assert.Error(t, err)
}

func TestDecodePayloadEmpty(t *testing.T) {
	p, err := DecodePayload(NotificationSystemAnnouncement, types.JSONText(`{}`))
	require.NoError(t, err)
	assert.Nil(t, p)

	raw, err := EncodePayload(nil)
	require.NoError(t, err)
	assert.Equal(t, types.JSONText(`{}`), raw)
}

func TestNotificationJobState(t *testing.T) {
	assert.Equal(t, JobPending, NotificationJob{}.State())
	assert.Equal(t, JobSent, NotificationJob{Sent: true}.State())
	assert.Equal(t, JobCancelled, NotificationJob{Cancelled: true}.State())
}
