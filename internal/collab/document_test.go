package collab

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvas-backend/internal/model"
)

func parseElements(t *testing.T, raw string) []model.Element {
	t.Helper()
	var out []model.Element
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestNewDocumentStore_AssignsMissingIDs(t *testing.T) {
	doc := model.Document{
		Shapes: parseElements(t, `[{"type":"circle","x":0,"y":0,"radius":1},{"id":"b","type":"circle","x":0,"y":0,"radius":1}]`),
	}
	d := NewDocumentStore(doc, 0)

	require.Len(t, d.Shapes(), 2)
	assert.NotEmpty(t, d.Shapes()[0].ID)
	assert.Equal(t, "b", d.Shapes()[1].ID)
	assert.NotNil(t, d.Lines())
	assert.Zero(t, d.Version())
}

func TestReplaceShapes_InheritsIDsByPosition(t *testing.T) {
	d := NewDocumentStore(model.Document{}, 0)

	first, err := d.ReplaceShapes(parseElements(t, `[{"type":"circle","x":0,"y":0,"radius":1}]`))
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.True(t, first.AssignedIDs)
	id := d.Shapes()[0].ID

	// same content without an id keeps the existing id
	second, err := d.ReplaceShapes(parseElements(t, `[{"type":"circle","x":0,"y":0,"radius":1}]`))
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.False(t, second.AssignedIDs)
	assert.Equal(t, id, d.Shapes()[0].ID)
	assert.Equal(t, uint64(1), d.Version())
}

func TestReplaceShapes_DuplicateIDsReassigned(t *testing.T) {
	d := NewDocumentStore(model.Document{}, 0)

	res, err := d.ReplaceShapes(parseElements(t, `[
		{"id":"dup","type":"circle","x":0,"y":0,"radius":1},
		{"id":"dup","type":"circle","x":5,"y":5,"radius":1}]`))
	require.NoError(t, err)
	assert.True(t, res.AssignedIDs)
	assert.Equal(t, "dup", d.Shapes()[0].ID)
	assert.NotEqual(t, "dup", d.Shapes()[1].ID)
}

func TestReplace_ElementLimit(t *testing.T) {
	d := NewDocumentStore(model.Document{Lines: parseElements(t, `[{"id":"l","points":[0,0]}]`)}, 2)

	_, err := d.ReplaceShapes(parseElements(t, `[{"id":"a","type":"circle","x":0,"y":0,"radius":1},{"id":"b","type":"circle","x":0,"y":0,"radius":1}]`))
	assert.True(t, errors.Is(err, ErrTooManyElements))
	assert.Empty(t, d.Shapes())
}

func TestReplace_DoesNotAliasInput(t *testing.T) {
	d := NewDocumentStore(model.Document{}, 0)
	in := parseElements(t, `[{"id":"a","points":[0,0,1,1]}]`)
	_, err := d.ReplaceLines(in)
	require.NoError(t, err)

	in[0].ID = "mutated"
	assert.Equal(t, "a", d.Lines()[0].ID)
}

func TestApply_CreateUpdateDelete(t *testing.T) {
	d := NewDocumentStore(model.Document{Shapes: parseElements(t, `[{"id":"a","type":"circle","x":0,"y":0,"radius":1}]`)}, 0)

	var ops []model.ElementOp
	require.NoError(t, json.Unmarshal([]byte(`[
		{"op":"create","kind":"shape","index":0,"element":{"type":"text","x":1,"y":1,"text":"hi"}},
		{"op":"update","kind":"shape","id":"a","element":{"type":"circle","x":3,"y":3,"radius":1}},
		{"op":"create","kind":"line","element":{"id":"l1","points":[0,0,2,2]}},
		{"op":"delete","kind":"line","id":"l1"},
		{"op":"update","kind":"shape","id":"ghost","element":{"type":"circle","x":3,"y":3,"radius":1}}
	]`), &ops))

	applied, err := d.Apply(ops)
	require.NoError(t, err)
	require.Len(t, applied, 4, "update of an unknown id is skipped")

	assert.NotEmpty(t, applied[0].ID)
	assert.Equal(t, 0, *applied[0].Index)
	assert.Equal(t, 1, *applied[1].Index, "existing shape shifted by the insert")
	assert.Equal(t, "l1", applied[3].ID)
	assert.Nil(t, applied[3].Element)

	shapes := d.Shapes()
	require.Len(t, shapes, 2)
	assert.Equal(t, applied[0].ID, shapes[0].ID)
	assert.Equal(t, "a", shapes[1].ID)
	x, _ := shapes[1].Field("x")
	assert.Equal(t, "3", string(x))
	assert.Empty(t, d.Lines())
	assert.Equal(t, uint64(1), d.Version())
}

func TestApply_UpdateKeepsStoredAuthor(t *testing.T) {
	d := NewDocumentStore(model.Document{Shapes: parseElements(t, `[
		{"id":"a","type":"circle","x":0,"y":0,"radius":1,"createdBy":"1"},
		{"id":"b","type":"circle","x":0,"y":0,"radius":1}]`)}, 0)

	var ops []model.ElementOp
	require.NoError(t, json.Unmarshal([]byte(`[
		{"op":"update","kind":"shape","id":"a","element":{"type":"circle","x":7,"y":0,"radius":1}},
		{"op":"update","kind":"shape","id":"b","element":{"type":"circle","x":7,"y":0,"radius":1,"createdBy":"2"}}
	]`), &ops))

	applied, err := d.Apply(ops)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "1", applied[0].Element.CreatedBy)

	shapes := d.Shapes()
	assert.Equal(t, "1", shapes[0].CreatedBy, "author survives an update without createdBy")
	author, ok := shapes[0].Field("createdBy")
	require.True(t, ok)
	assert.Equal(t, `"1"`, string(author))

	assert.Empty(t, shapes[1].CreatedBy, "an update cannot claim an unowned element")
	_, ok = shapes[1].Field("createdBy")
	assert.False(t, ok)
}

func TestApply_RejectsWholeBatch(t *testing.T) {
	d := NewDocumentStore(model.Document{Shapes: parseElements(t, `[{"id":"a","type":"circle","x":0,"y":0,"radius":1}]`)}, 0)
	before := d.State()

	cases := map[string]string{
		"duplicate create": `[{"op":"create","kind":"shape","element":{"id":"a","type":"circle","x":0,"y":0,"radius":1}}]`,
		"invalid element":  `[{"op":"delete","kind":"shape","id":"a"},{"op":"create","kind":"shape","element":{"type":"rect","x":0}}]`,
		"unknown kind":     `[{"op":"delete","kind":"sticker","id":"a"}]`,
		"unknown op":       `[{"op":"move","kind":"shape","id":"a"}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var ops []model.ElementOp
			require.NoError(t, json.Unmarshal([]byte(raw), &ops))

			_, err := d.Apply(ops)
			assert.Error(t, err)
			assert.True(t, d.State().Equal(before))
		})
	}
}

func TestApply_ElementLimit(t *testing.T) {
	d := NewDocumentStore(model.Document{}, 1)

	var ops []model.ElementOp
	require.NoError(t, json.Unmarshal([]byte(`[
		{"op":"create","kind":"line","element":{"points":[0,0]}},
		{"op":"create","kind":"line","element":{"points":[1,1]}}]`), &ops))

	_, err := d.Apply(ops)
	assert.True(t, errors.Is(err, ErrTooManyElements))
	assert.Empty(t, d.Lines())
}

func TestSet_ReportsChange(t *testing.T) {
	d := NewDocumentStore(model.Document{}, 0)
	doc := model.Document{Shapes: parseElements(t, `[{"id":"a","type":"circle","x":0,"y":0,"radius":1}]`)}

	assert.True(t, d.Set(doc))
	assert.False(t, d.Set(doc))
	assert.Equal(t, "a", d.ShapeIDAt(0))
	assert.Empty(t, d.ShapeIDAt(1))
	assert.Empty(t, d.ShapeIDAt(-1))
}
