package collab

// Cursor 연결별 커서 위치
type Cursor struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Name string  `json:"name"`
}

// PresenceTracker 룸 단위 커서 맵 (연결 ID → Cursor). Room.mu로 보호된다.
type PresenceTracker struct {
	cursors map[string]Cursor
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{cursors: make(map[string]Cursor)}
}

// Upsert 커서 갱신
func (p *PresenceTracker) Upsert(connID string, c Cursor) {
	p.cursors[connID] = c
}

// Remove 커서 제거. 있었으면 true.
func (p *PresenceTracker) Remove(connID string) bool {
	if _, ok := p.cursors[connID]; !ok {
		return false
	}
	delete(p.cursors, connID)
	return true
}

// Snapshot 전체 커서 맵 복사본 (브로드캐스트용)
func (p *PresenceTracker) Snapshot() map[string]Cursor {
	out := make(map[string]Cursor, len(p.cursors))
	for k, v := range p.cursors {
		out[k] = v
	}
	return out
}

// Len 커서 수
func (p *PresenceTracker) Len() int {
	return len(p.cursors)
}
