package server

import (
	"net/http"
	"testing"

	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestNoErrOk(t *testing.T) {
	state := types.RoomState{Id: "alice", Status: types.RoomStatusArmed}
	msg := NoErrOK(7, state)

	assert.Equal(t, 7, msg.Id)
	assert.False(t, msg.Timestamp.IsZero(), "expected timestamp to be set")
	assert.Equal(t, http.StatusOK, msg.Response.ResponseCode)
	assert.Equal(t, state, msg.Response.Data)
	assert.Empty(t, msg.Response.Error)
}

func TestErrorResponses(t *testing.T) {
	tcases := []struct {
		name string
		msg  *ServerMessage
		code int
	}{
		{"room not found", ErrRoomNotFound(1), http.StatusNotFound},
		{"forbidden", ErrForbidden(1), http.StatusForbidden},
		{"conflict", ErrConflict(1), http.StatusConflict},
		{"unprocessable", ErrUnprocessable(1, "nope"), http.StatusUnprocessableEntity},
		{"internal error", ErrInternalError(1), http.StatusInternalServerError},
		{"service unavailable", ErrServiceUnavailable(1), http.StatusServiceUnavailable},
		{"invalid message", ErrInvalidMessage(1), http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, 1, tc.msg.Id)
			assert.Equal(t, tc.code, tc.msg.Response.ResponseCode)
			assert.NotEmpty(t, tc.msg.Response.Error)
			assert.Nil(t, tc.msg.Room)
		})
	}
}

func TestErrorInvalidMessage(t *testing.T) {
	assert.Equal(t, 0, ErrInvalidMessage(-1).Id, "expected negative id to be omitted")
	assert.Equal(t, 3, ErrInvalidMessage(3).Id)
}

func TestSnapshotMessage(t *testing.T) {
	state := &types.RoomState{Id: "alice", Status: types.RoomStatusIdle, Version: 1}

	msg := SnapshotMessage(state)
	assert.True(t, msg.Room.Exists)
	assert.Equal(t, state, msg.Room.State)
	assert.Nil(t, msg.Response)

	missing := SnapshotMessage(nil)
	assert.False(t, missing.Room.Exists)
	assert.Nil(t, missing.Room.State)
}
