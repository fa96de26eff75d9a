package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknown(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Nil(t, FromError(nil))
}

func TestCloneMatchesTemplate(t *testing.T) {
	cloned := Clone(ErrSlotUnavailable, "")
	wrapped := fmt.Errorf("create booking: %w", cloned)

	assert.True(t, errors.Is(wrapped, ErrSlotUnavailable))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, "instructor not available at the requested time", FromError(wrapped).Message)
}

func TestWithDetailsLeavesTemplateUntouched(t *testing.T) {
	detailed := ErrSlotUnavailable.WithDetails(map[string]interface{}{"instructorId": "i-1"})
	assert.Equal(t, "i-1", detailed.Details["instructorId"])
	assert.Nil(t, ErrSlotUnavailable.Details)
}
