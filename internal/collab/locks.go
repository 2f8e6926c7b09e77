package collab

import (
	"sort"
	"time"

	"canvas-backend/internal/model"
)

// Lock shape 단위 advisory 락 (임대)
type Lock struct {
	Index      int
	Holder     string // 연결 ID
	ShapeID    string // 획득 시점의 shape id (범위 밖 index면 나중에 바인딩)
	AcquiredAt time.Time
	ExpiresAt  time.Time // zero면 만료 없음
}

func (l *Lock) expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

// AcquireResult 락 획득 시도 결과
type AcquireResult struct {
	Granted bool   // 새로 획득
	Renewed bool   // 이미 보유 중이라 임대만 연장
	Holder  string // 현재 보유자
}

// LockTable 룸 단위 락 테이블. index당 보유자는 최대 하나. Room.mu로 보호된다.
type LockTable struct {
	ttl   time.Duration
	now   func() time.Time
	locks map[int]*Lock
}

// NewLockTable ttl이 0이면 명시적 해제/연결 종료 전까지 유지
func NewLockTable(ttl time.Duration, now func() time.Time) *LockTable {
	if now == nil {
		now = time.Now
	}
	return &LockTable{
		ttl:   ttl,
		now:   now,
		locks: make(map[int]*Lock),
	}
}

// Acquire 선착순 획득. 다른 연결이 보유 중이면 실패, 본인이면 임대 연장.
func (t *LockTable) Acquire(index int, holder, shapeID string) AcquireResult {
	now := t.now()

	if l, ok := t.locks[index]; ok && !l.expired(now) {
		if l.Holder != holder {
			return AcquireResult{Holder: l.Holder}
		}
		l.ExpiresAt = t.expiry(now)
		if l.ShapeID == "" {
			l.ShapeID = shapeID
		}
		return AcquireResult{Renewed: true, Holder: holder}
	}

	t.locks[index] = &Lock{
		Index:      index,
		Holder:     holder,
		ShapeID:    shapeID,
		AcquiredAt: now,
		ExpiresAt:  t.expiry(now),
	}
	return AcquireResult{Granted: true, Holder: holder}
}

func (t *LockTable) expiry(now time.Time) time.Time {
	if t.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(t.ttl)
}

// Release 보유자 본인일 때만 해제
func (t *LockTable) Release(index int, holder string) bool {
	l, ok := t.locks[index]
	if !ok || l.Holder != holder {
		return false
	}
	delete(t.locks, index)
	return true
}

// ReleaseAll holder의 락을 모두 해제하고 해제된 index를 오름차순으로 반환
func (t *LockTable) ReleaseAll(holder string) []int {
	var released []int
	for index, l := range t.locks {
		if l.Holder == holder {
			delete(t.locks, index)
			released = append(released, index)
		}
	}
	sort.Ints(released)
	return released
}

// Expire 만료된 임대를 해제
func (t *LockTable) Expire() []Lock {
	now := t.now()
	var expired []Lock
	for index, l := range t.locks {
		if l.expired(now) {
			delete(t.locks, index)
			expired = append(expired, *l)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Index < expired[j].Index })
	return expired
}

// Reconcile shapes 배열 변경 후 index가 다른 shape를 가리키게 된 락을 해제한다.
// 아직 바인딩되지 않은 락은 해당 index가 생기면 그 shape에 바인딩된다.
func (t *LockTable) Reconcile(shapes []model.Element) []int {
	var released []int
	for index, l := range t.locks {
		if index >= len(shapes) {
			if l.ShapeID != "" {
				delete(t.locks, index)
				released = append(released, index)
			}
			continue
		}
		current := shapes[index].ID
		switch {
		case l.ShapeID == "":
			l.ShapeID = current
		case l.ShapeID != current:
			delete(t.locks, index)
			released = append(released, index)
		}
	}
	sort.Ints(released)
	return released
}

// holderOf index의 현재 보유자
func (t *LockTable) holderOf(index int) (string, bool) {
	l, ok := t.locks[index]
	if !ok || l.expired(t.now()) {
		return "", false
	}
	return l.Holder, true
}

// Snapshot index → 보유자 (만료된 임대 제외)
func (t *LockTable) Snapshot() map[int]string {
	now := t.now()
	out := make(map[int]string, len(t.locks))
	for index, l := range t.locks {
		if l.expired(now) {
			continue
		}
		out[index] = l.Holder
	}
	return out
}

// Len 보유 중인 락 수
func (t *LockTable) Len() int {
	return len(t.locks)
}
