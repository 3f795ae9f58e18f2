package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:    http.StatusBadRequest,
		KindUnauthenticated: http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindInternal:        http.StatusInternalServerError,
		Kind("unknown"):     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), string(kind))
	}
}

func TestSentinelMatchesThroughWrapping(t *testing.T) {
	sentinel := Conflict("slot_already_booked", "slot already booked")
	wrapped := fmt.Errorf("insert appointment: %w", sentinel)

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestWithMessageKeepsIdentity(t *testing.T) {
	sentinel := Conflict("invalid_status_transition", "invalid status transition")
	detailed := sentinel.WithMessage("cannot initiate payment for status %s", "PAID")

	assert.True(t, errors.Is(detailed, sentinel))
	assert.Equal(t, "cannot initiate payment for status PAID", detailed.Message)
	assert.Equal(t, "invalid status transition", sentinel.Message)
}

func TestFromForeignError(t *testing.T) {
	e := From(errors.New("connection reset"))

	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "internal error", e.Message)
	assert.Nil(t, From(nil))
}
