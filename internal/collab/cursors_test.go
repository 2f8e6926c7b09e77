package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceTracker(t *testing.T) {
	p := NewPresenceTracker()

	p.Upsert("a", Cursor{X: 1, Y: 2, Name: "alice"})
	p.Upsert("a", Cursor{X: 3, Y: 4, Name: "alice"})
	p.Upsert("b", Cursor{X: 0, Y: 0, Name: "bob"})
	assert.Equal(t, 2, p.Len())

	snap := p.Snapshot()
	assert.Equal(t, Cursor{X: 3, Y: 4, Name: "alice"}, snap["a"])

	snap["c"] = Cursor{}
	assert.Equal(t, 2, p.Len(), "snapshot is a copy")

	assert.True(t, p.Remove("a"))
	assert.False(t, p.Remove("a"))
	assert.NotContains(t, p.Snapshot(), "a")
}

func TestCodeOf(t *testing.T) {
	cases := map[error]string{
		ErrInvalidPayload:  CodeInvalidPayload,
		ErrTooManyElements: CodeInvalidPayload,
		ErrUnknownEvent:    CodeUnknownEvent,
		ErrNotJoined:       CodeNotJoined,
		ErrSessionClosed:   CodeNotJoined,
		ErrBoardMismatch:   CodeBoardMismatch,
		ErrForbidden:       CodeForbidden,
		ErrBoardNotFound:   CodeBoardNotFound,
		ErrPersistence:     CodePersistenceFailed,
		assert.AnError:     CodeInternal,
	}
	for err, code := range cases {
		assert.Equal(t, code, CodeOf(err), err.Error())
	}
}
