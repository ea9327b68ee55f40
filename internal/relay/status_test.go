package relay

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/koopa0/system-design/14-party-relay/internal/room"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{room.ErrInvalidRoomCode, http.StatusBadRequest},
		{room.ErrNameTaken, http.StatusBadRequest},
		{room.ErrRoomNotFound, http.StatusNotFound},
		{room.ErrRoomFull, http.StatusConflict},
		{room.ErrUnauthorized, http.StatusForbidden},
		{room.ErrCodeExhausted, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
