package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"canvas-backend/internal/history"
	"canvas-backend/internal/model"
	"canvas-backend/internal/session"
)

// Room 보드 하나의 협업 상태 (문서, 락, 커서, 연결별 히스토리)
//
// 첫 참여 시 생성되고 마지막 연결이 나가면 폐기된다. 상태는 저장되지 않는다.
type Room struct {
	ID string

	mu        sync.Mutex
	members   map[string]*session.Session // 연결 ID → 세션
	joinedAt  map[string]time.Time
	doc       *DocumentStore
	locks     *LockTable
	cursors   *PresenceTracker
	histories map[string]*history.Manager
	closed    bool

	// 문서 최초 로드
	loadMu sync.Mutex
	loaded bool

	// 채팅 저장 순서 = 브로드캐스트 순서
	chatMu sync.Mutex
}

func newRoom(id string, opts Options, now func() time.Time) *Room {
	return &Room{
		ID:        id,
		members:   make(map[string]*session.Session),
		joinedAt:  make(map[string]time.Time),
		doc:       NewDocumentStore(model.Document{}, opts.MaxElements),
		locks:     NewLockTable(opts.LockTTL, now),
		cursors:   NewPresenceTracker(),
		histories: make(map[string]*history.Manager),
	}
}

// ensureLoaded 저장소에서 문서를 한 번만 읽어 온다
func (r *Room) ensureLoaded(ctx context.Context, boards BoardRepository, maxElements int) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if r.loaded {
		return nil
	}

	doc, err := boards.Fetch(ctx, r.ID)
	if err != nil {
		if errors.Is(err, model.ErrBoardNotFound) {
			return fmt.Errorf("%w: %s", ErrBoardNotFound, r.ID)
		}
		return fmt.Errorf("%w: fetch board: %w", ErrPersistence, err)
	}

	r.mu.Lock()
	r.doc = NewDocumentStore(doc, maxElements)
	r.mu.Unlock()

	r.loaded = true
	return nil
}

// broadcast except를 제외한 모든 멤버에게 전송. r.mu 보유 상태에서 호출.
func (r *Room) broadcast(frame []byte, except string) {
	if frame == nil {
		return
	}
	for id, s := range r.members {
		if id == except {
			continue
		}
		s.Send(frame)
	}
}

// broadcastLock 락 상태 변경 알림. r.mu 보유 상태에서 호출.
func (r *Room) broadcastLock(index int, holder string) {
	update := LockUpdate{ShapeIndex: index}
	if holder != "" {
		update.LockedBy = &holder
	}
	r.broadcast(encode(EventRemoteLockUpdate, update), "")
}

// sendState 참여자에게 현재 문서, 락, 커서, 히스토리 상태 전송. r.mu 보유 상태에서 호출.
func (r *Room) sendState(s *session.Session, role model.Role) {
	s.Send(encode(EventBoardState, BoardState{
		BoardID:      r.ID,
		ConnectionID: s.ID,
		Role:         role,
		Shapes:       r.doc.Shapes(),
		Lines:        r.doc.Lines(),
		Locks:        r.locks.Snapshot(),
	}))
	s.Send(encode(EventCursorsUpdate, r.cursors.Snapshot()))

	state := HistoryState{}
	if m, ok := r.histories[s.ID]; ok {
		state = HistoryState{CanUndo: m.CanUndo(), CanRedo: m.CanRedo()}
	}
	s.Send(encode(EventHistoryState, state))
}

// memberIDs 연결 ID 목록. r.mu 보유 상태에서 호출.
func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// Members 접속 중인 연결 정보
func (r *Room) Members() []model.OnlineMember {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.OnlineMember, 0, len(r.members))
	for id, s := range r.members {
		out = append(out, model.OnlineMember{
			ConnectionID: id,
			UserID:       s.UserID,
			Nickname:     s.Nickname,
			Role:         s.Role(),
			JoinedAt:     r.joinedAt[id],
		})
	}
	return out
}
