// Package history 사용자 단위 undo/redo 스택
//
// 스냅샷은 문서 전체를 저장하지만, undo/redo 결과에는 해당 사용자가 작성한
// 요소만 스냅샷에서 복원되고 다른 사용자의 요소는 현재 문서 그대로 남는다.
package history

import (
	"canvas-backend/internal/model"
)

// DefaultLimit 기본 스택 깊이
const DefaultLimit = 100

// Manager 한 연결(사용자)의 undo/redo 스택. 동시성 보호는 호출자 책임.
type Manager struct {
	limit int
	undo  []model.Document
	redo  []model.Document
}

// NewManager Manager 생성 (limit <= 0 이면 DefaultLimit)
func NewManager(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit}
}

// Save 변경 직전 문서를 undo 스택에 저장하고 redo 스택을 비운다
func (m *Manager) Save(doc model.Document) {
	m.undo = push(m.undo, doc.Clone(), m.limit)
	m.redo = nil
}

// Undo 가장 최근 스냅샷으로 userID 소유 요소만 되돌린 문서를 반환
func (m *Manager) Undo(current model.Document, userID string) (model.Document, bool) {
	if len(m.undo) == 0 {
		return model.Document{}, false
	}
	snapshot := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = push(m.redo, current.Clone(), m.limit)

	return Partition(current, snapshot, userID), true
}

// Redo Undo의 역연산
func (m *Manager) Redo(current model.Document, userID string) (model.Document, bool) {
	if len(m.redo) == 0 {
		return model.Document{}, false
	}
	snapshot := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = push(m.undo, current.Clone(), m.limit)

	return Partition(current, snapshot, userID), true
}

// CanUndo undo 가능 여부
func (m *Manager) CanUndo() bool {
	return len(m.undo) > 0
}

// CanRedo redo 가능 여부
func (m *Manager) CanRedo() bool {
	return len(m.redo) > 0
}

// depth 스택 깊이 (undo, redo)
func (m *Manager) depth() (int, int) {
	return len(m.undo), len(m.redo)
}

func push(stack []model.Document, doc model.Document, limit int) []model.Document {
	stack = append(stack, doc)
	if len(stack) > limit {
		stack = stack[len(stack)-limit:]
	}
	return stack
}

// Partition userID 소유 요소는 snapshot에서, 나머지는 current에서 가져와 합친다
func Partition(current, snapshot model.Document, userID string) model.Document {
	return model.Document{
		Shapes: partition(current.Shapes, snapshot.Shapes, userID),
		Lines:  partition(current.Lines, snapshot.Lines, userID),
	}
}

// partition 순서: snapshot 순서를 기준으로 하고, snapshot 이후 생긴 타인의 요소는 뒤에 붙인다
func partition(current, snapshot []model.Element, userID string) []model.Element {
	others := make(map[string]model.Element)
	for _, e := range current {
		if e.CreatedBy != userID && e.ID != "" {
			others[e.ID] = e
		}
	}

	out := make([]model.Element, 0, len(current)+len(snapshot))
	placed := make(map[string]bool)
	for _, e := range snapshot {
		if e.CreatedBy == userID {
			out = append(out, e.Clone())
			if e.ID != "" {
				placed[e.ID] = true
			}
			continue
		}
		if e.ID == "" {
			continue
		}
		if cur, ok := others[e.ID]; ok && !placed[e.ID] {
			out = append(out, cur.Clone())
			placed[e.ID] = true
		}
	}

	for _, e := range current {
		if e.CreatedBy == userID || (e.ID != "" && placed[e.ID]) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}
