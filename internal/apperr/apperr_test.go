package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(Conflict, "snapshot already exists for that date")
	wrapped := fmt.Errorf("import row 3: %w", base)

	assert.True(t, Is(wrapped, Conflict))
	assert.Equal(t, Conflict, KindOf(wrapped))
	assert.Equal(t, http.StatusConflict, Status(wrapped))
}

func TestUntypedErrorsAreInternal(t *testing.T) {
	err := errors.New("something odd")
	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, Status(err))
}

func TestFieldErrors(t *testing.T) {
	err := Field(Validation, "quantity", "must be a positive number")
	assert.Equal(t, "VALIDATION: quantity: must be a positive number", err.Error())
	assert.Equal(t, http.StatusBadRequest, Status(err))
}

func TestWrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Upstream, "no price available for VAS", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, http.StatusBadGateway, Status(err))
}
