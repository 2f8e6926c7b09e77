package collab

import (
	"fmt"

	"canvas-backend/internal/model"
)

// ReplaceResult 배열 교체 결과
type ReplaceResult struct {
	Changed     bool // 문서 내용이 실제로 바뀌었는지
	AssignedIDs bool // 서버가 id를 부여(또는 중복 id를 재부여)했는지
}

// DocumentStore 룸의 정본 문서 (shapes, lines).
//
// 저장된 슬라이스는 교체만 되고 제자리 수정되지 않는다. Room.mu로 보호된다.
type DocumentStore struct {
	shapes      []model.Element
	lines       []model.Element
	maxElements int
	version     uint64
}

// NewDocumentStore 저장소에서 읽은 문서로 초기화 (id 없는 요소에는 id 부여)
func NewDocumentStore(doc model.Document, maxElements int) *DocumentStore {
	d := &DocumentStore{maxElements: maxElements}
	d.shapes, _ = normalize(doc.Shapes, nil)
	d.lines, _ = normalize(doc.Lines, nil)
	return d
}

// State 문서 복사본
func (d *DocumentStore) State() model.Document {
	return d.Current().Clone()
}

// Current 복사 없이 현재 문서 반환 (읽기 전용으로만 사용)
func (d *DocumentStore) Current() model.Document {
	return model.Document{Shapes: d.shapes, Lines: d.lines}
}

// Shapes 현재 shapes (읽기 전용)
func (d *DocumentStore) Shapes() []model.Element {
	return d.shapes
}

// Lines 현재 lines (읽기 전용)
func (d *DocumentStore) Lines() []model.Element {
	return d.lines
}

// Version 변경 횟수
func (d *DocumentStore) Version() uint64 {
	return d.version
}

// ShapeIDAt index 위치 shape의 id (범위 밖이면 빈 문자열)
func (d *DocumentStore) ShapeIDAt(index int) string {
	if index < 0 || index >= len(d.shapes) {
		return ""
	}
	return d.shapes[index].ID
}

// ReplaceShapes shapes 배열 전체 교체 (last-writer-wins)
func (d *DocumentStore) ReplaceShapes(shapes []model.Element) (ReplaceResult, error) {
	if err := d.checkSize(len(shapes) + len(d.lines)); err != nil {
		return ReplaceResult{}, err
	}
	next, assigned := normalize(shapes, d.shapes)
	changed := !model.ElementsEqual(next, d.shapes)
	d.shapes = next
	if changed {
		d.version++
	}
	return ReplaceResult{Changed: changed, AssignedIDs: assigned}, nil
}

// ReplaceLines lines 배열 전체 교체 (last-writer-wins)
func (d *DocumentStore) ReplaceLines(lines []model.Element) (ReplaceResult, error) {
	if err := d.checkSize(len(d.shapes) + len(lines)); err != nil {
		return ReplaceResult{}, err
	}
	next, assigned := normalize(lines, d.lines)
	changed := !model.ElementsEqual(next, d.lines)
	d.lines = next
	if changed {
		d.version++
	}
	return ReplaceResult{Changed: changed, AssignedIDs: assigned}, nil
}

// Set undo/redo 결과 등 이미 정규화된 문서로 교체
func (d *DocumentStore) Set(doc model.Document) bool {
	shapes, _ := normalize(doc.Shapes, d.shapes)
	lines, _ := normalize(doc.Lines, d.lines)
	changed := !model.ElementsEqual(shapes, d.shapes) || !model.ElementsEqual(lines, d.lines)
	d.shapes, d.lines = shapes, lines
	if changed {
		d.version++
	}
	return changed
}

// Apply 요소 단위 연산을 원자적으로 적용한다.
// 하나라도 잘못된 연산이 있으면 아무것도 바뀌지 않는다.
// 반환값은 실제 적용된 연산 (서버 부여 id, 최종 index 포함).
func (d *DocumentStore) Apply(ops []model.ElementOp) ([]model.ElementOp, error) {
	shapes := append([]model.Element(nil), d.shapes...)
	lines := append([]model.Element(nil), d.lines...)
	applied := make([]model.ElementOp, 0, len(ops))

	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}

		target := &shapes
		if op.Kind == model.KindLine {
			target = &lines
		}

		switch op.Op {
		case model.OpCreate:
			el := op.Element.Clone()
			if el.ID == "" {
				el.ID = op.ID
			}
			el.EnsureID()
			if indexOf(*target, el.ID) >= 0 {
				return nil, fmt.Errorf("op %d: %w: duplicate id %q", i, model.ErrInvalidOp, el.ID)
			}
			pos := len(*target)
			if op.Index != nil && *op.Index < pos {
				pos = *op.Index
			}
			*target = insertAt(*target, pos, el)
			applied = append(applied, model.ElementOp{Op: op.Op, Kind: op.Kind, ID: el.ID, Index: intPtr(pos), Element: &el})

		case model.OpUpdate:
			id := op.TargetID()
			pos := indexOf(*target, id)
			if pos < 0 {
				continue
			}
			el := op.Element.WithAuthorOf((*target)[pos])
			el.ID = id
			(*target)[pos] = el
			applied = append(applied, model.ElementOp{Op: op.Op, Kind: op.Kind, ID: id, Index: intPtr(pos), Element: &el})

		case model.OpDelete:
			id := op.TargetID()
			pos := indexOf(*target, id)
			if pos < 0 {
				continue
			}
			*target = append((*target)[:pos:pos], (*target)[pos+1:]...)
			applied = append(applied, model.ElementOp{Op: op.Op, Kind: op.Kind, ID: id, Index: intPtr(pos)})
		}
	}

	if err := d.checkSize(len(shapes) + len(lines)); err != nil {
		return nil, err
	}
	if len(applied) > 0 {
		d.shapes, d.lines = shapes, lines
		d.version++
	}
	return applied, nil
}

func (d *DocumentStore) checkSize(n int) error {
	if d.maxElements > 0 && n > d.maxElements {
		return fmt.Errorf("%w: %d elements exceeds limit %d", ErrTooManyElements, n, d.maxElements)
	}
	return nil
}

// normalize 입력 배열을 복사하면서 id를 보장한다.
// id 없는 요소가 같은 위치의 기존 요소와 내용이 같으면 그 id를 이어받는다.
func normalize(in, prev []model.Element) ([]model.Element, bool) {
	out := make([]model.Element, len(in))
	seen := make(map[string]bool, len(in))
	assigned := false

	for i, e := range in {
		if e.ID == "" && i < len(prev) && !seen[prev[i].ID] && e.SameContent(prev[i]) {
			e.ID = prev[i].ID
		}
		if e.ID != "" && seen[e.ID] {
			e.ID = ""
		}
		if e.EnsureID() {
			assigned = true
		}
		seen[e.ID] = true
		out[i] = e
	}
	return out, assigned
}

func indexOf(elements []model.Element, id string) int {
	for i, e := range elements {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func insertAt(elements []model.Element, pos int, el model.Element) []model.Element {
	elements = append(elements, model.Element{})
	copy(elements[pos+1:], elements[pos:])
	elements[pos] = el
	return elements
}

func intPtr(v int) *int {
	return &v
}
