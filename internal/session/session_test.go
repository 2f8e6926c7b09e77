package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvas-backend/internal/model"
)

func TestSession_Lifecycle(t *testing.T) {
	s := New(7, "alice", 4)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StateDisconnected, s.currentState())

	require.True(t, s.Join("b1", model.RoleEditor))
	assert.Equal(t, StateJoined, s.currentState())
	assert.Equal(t, "b1", s.BoardID())
	assert.Equal(t, model.RoleEditor, s.Role())

	s.Leave()
	assert.Equal(t, StateDisconnected, s.currentState())
	assert.Empty(t, s.BoardID())

	s.Close()
	assert.True(t, s.IsClosed())
	assert.False(t, s.Join("b1", model.RoleEditor))
	assert.Error(t, s.Context().Err())

	// Close is idempotent
	s.Close()
}

func TestSession_SendAfterCloseIsDropped(t *testing.T) {
	s := New(1, "bob", 4)
	assert.True(t, s.Send([]byte("a")))
	s.Close()
	assert.False(t, s.Send([]byte("b")))

	var got []string
	for frame := range s.Outbound() {
		got = append(got, string(frame))
	}
	assert.Equal(t, []string{"a"}, got)
}

func TestSession_OverflowCancelsContext(t *testing.T) {
	s := New(1, "bob", 1)
	assert.True(t, s.Send([]byte("a")))
	assert.False(t, s.Send([]byte("b")))
	assert.Error(t, s.Context().Err())
	assert.False(t, s.IsClosed())
}

func TestSession_CloseKeepsBoardID(t *testing.T) {
	s := New(1, "bob", 1)
	s.Join("b9", model.RoleViewer)
	s.Close()
	assert.Equal(t, "b9", s.BoardID())
	assert.Equal(t, "closed", s.currentState().String())
}
