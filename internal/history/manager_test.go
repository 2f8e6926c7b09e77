package history

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvas-backend/internal/model"
)

func circle(t *testing.T, id, author string, x int) model.Element {
	t.Helper()
	var e model.Element
	raw := fmt.Sprintf(`{"id":%q,"type":"circle","x":%d,"y":0,"radius":5,"createdBy":%q}`, id, x, author)
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func line(t *testing.T, id, author string) model.Element {
	t.Helper()
	var e model.Element
	raw := fmt.Sprintf(`{"id":%q,"points":[0,0,1,1],"createdBy":%q}`, id, author)
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func ids(elements []model.Element) []string {
	out := make([]string, len(elements))
	for i, e := range elements {
		out[i] = e.ID
	}
	return out
}

func doc(shapes ...model.Element) model.Document {
	return model.Document{Shapes: shapes, Lines: []model.Element{}}
}

// U1 adds a shape then undoes: back to the original two, U2 untouched.
func TestUndo_RemovesOwnAddition(t *testing.T) {
	s1 := circle(t, "s1", "u1", 0)
	s2 := circle(t, "s2", "u2", 10)
	s3 := circle(t, "s3", "u1", 20)

	m := NewManager(10)
	m.Save(doc(s1, s2))

	result, ok := m.Undo(doc(s1, s2, s3), "u1")
	require.True(t, ok)
	assert.Equal(t, []string{"s1", "s2"}, ids(result.Shapes))
	assert.True(t, result.Shapes[1].Equal(s2))
	assert.True(t, m.CanRedo())
	assert.False(t, m.CanUndo())
}

func TestUndo_KeepsOthersConcurrentEdits(t *testing.T) {
	mine := circle(t, "a", "u1", 0)
	theirs := circle(t, "b", "u2", 0)

	m := NewManager(10)
	m.Save(doc(mine, theirs))

	movedMine := circle(t, "a", "u1", 99)
	movedTheirs := circle(t, "b", "u2", 42)
	added := circle(t, "c", "u2", 7)
	current := doc(movedMine, movedTheirs, added)

	result, ok := m.Undo(current, "u1")
	require.True(t, ok)

	assert.Equal(t, []string{"a", "b", "c"}, ids(result.Shapes))
	assert.True(t, result.Shapes[0].Equal(mine), "own element reverted")
	assert.True(t, result.Shapes[1].Equal(movedTheirs), "other's edit kept")
	assert.True(t, result.Shapes[2].Equal(added), "other's addition kept")
}

func TestUndo_DoesNotResurrectOthersDeletes(t *testing.T) {
	mine := circle(t, "a", "u1", 0)
	theirs := circle(t, "b", "u2", 0)

	m := NewManager(10)
	m.Save(doc(mine, theirs))

	result, ok := m.Undo(doc(), "u1")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, ids(result.Shapes))
}

func TestUndo_AuthorshipIsolation(t *testing.T) {
	m := NewManager(10)
	m.Save(doc(circle(t, "a", "u1", 0), circle(t, "b", "u2", 0), circle(t, "c", "u3", 0)))

	current := doc(
		circle(t, "c", "u3", 5),
		circle(t, "a", "u1", 1),
		circle(t, "d", "u2", 3),
		circle(t, "e", "u1", 4),
	)
	current.Lines = []model.Element{line(t, "l1", "u2"), line(t, "l2", "u1")}

	result, ok := m.Undo(current, "u1")
	require.True(t, ok)

	before := map[string]model.Element{}
	for _, e := range append(current.Shapes, current.Lines...) {
		if e.CreatedBy != "u1" {
			before[e.ID] = e
		}
	}
	after := map[string]model.Element{}
	for _, e := range append(result.Shapes, result.Lines...) {
		if e.CreatedBy != "u1" {
			after[e.ID] = e
		}
	}
	require.Len(t, after, len(before))
	for id, e := range before {
		assert.True(t, e.Equal(after[id]), "element %s changed", id)
	}
}

func TestRedo_RestoresUndoneWork(t *testing.T) {
	s1 := circle(t, "s1", "u1", 0)
	s2 := circle(t, "s2", "u2", 0)
	s3 := circle(t, "s3", "u1", 0)

	m := NewManager(10)
	m.Save(doc(s1, s2))
	undone, ok := m.Undo(doc(s1, s2, s3), "u1")
	require.True(t, ok)

	redone, ok := m.Redo(undone, "u1")
	require.True(t, ok)
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids(redone.Shapes))
	assert.True(t, m.CanUndo())
	assert.False(t, m.CanRedo())
}

func TestRedo_PartitionsLines(t *testing.T) {
	mine := line(t, "l1", "u1")
	theirs := line(t, "l2", "u2")

	m := NewManager(10)
	m.Save(model.Document{Shapes: []model.Element{}, Lines: []model.Element{theirs}})

	current := model.Document{Shapes: []model.Element{}, Lines: []model.Element{theirs, mine}}
	undone, ok := m.Undo(current, "u1")
	require.True(t, ok)
	assert.Equal(t, []string{"l2"}, ids(undone.Lines))

	redone, ok := m.Redo(undone, "u1")
	require.True(t, ok)
	assert.Equal(t, []string{"l2", "l1"}, ids(redone.Lines))
}

func TestSave_ClearsRedo(t *testing.T) {
	m := NewManager(10)
	m.Save(doc())
	_, ok := m.Undo(doc(circle(t, "a", "u1", 0)), "u1")
	require.True(t, ok)
	require.True(t, m.CanRedo())

	m.Save(doc())
	assert.False(t, m.CanRedo())
}

func TestEmptyStacks(t *testing.T) {
	m := NewManager(0)
	_, ok := m.Undo(doc(), "u1")
	assert.False(t, ok)
	_, ok = m.Redo(doc(), "u1")
	assert.False(t, ok)
}

func TestSave_RespectsLimit(t *testing.T) {
	m := NewManager(3)
	for i := 0; i < 5; i++ {
		m.Save(doc(circle(t, fmt.Sprintf("s%d", i), "u1", i)))
	}
	undo, redo := m.depth()
	assert.Equal(t, 3, undo)
	assert.Equal(t, 0, redo)

	// oldest two were dropped; the deepest remaining snapshot holds s2
	var last model.Document
	for m.CanUndo() {
		last, _ = m.Undo(doc(), "u1")
	}
	assert.Equal(t, []string{"s2"}, ids(last.Shapes))
}

func TestSave_StoresCopy(t *testing.T) {
	shapes := []model.Element{circle(t, "a", "u1", 0)}
	m := NewManager(10)
	m.Save(model.Document{Shapes: shapes, Lines: []model.Element{}})

	shapes[0] = circle(t, "z", "u1", 0)

	result, ok := m.Undo(doc(), "u1")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, ids(result.Shapes))
}

func TestPartition_SameIDNotDuplicated(t *testing.T) {
	// 현재 문서에서 u1 요소의 createdBy가 바뀌어 있어도 같은 id는 한 번만 나온다
	snapshot := doc(circle(t, "a", "u1", 0))
	current := doc(circle(t, "a", "u2", 30), circle(t, "b", "u2", 5))

	got := Partition(current, snapshot, "u1")
	assert.Equal(t, []string{"a", "b"}, ids(got.Shapes))
	x, _ := got.Shapes[0].Field("x")
	assert.Equal(t, "0", string(x))
	assert.Equal(t, "u1", got.Shapes[0].CreatedBy)
}
