package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"canvas-backend/internal/history"
	"canvas-backend/internal/metrics"
	"canvas-backend/internal/model"
	"canvas-backend/internal/session"
)

// =============================================================================
// External collaborators
// =============================================================================

// BoardRepository 보드 문서 저장소
type BoardRepository interface {
	Fetch(ctx context.Context, boardID string) (model.Document, error)
	Save(ctx context.Context, boardID string, doc model.Document) error
}

// ChatLog 채팅 저장소
type ChatLog interface {
	Append(ctx context.Context, boardID, user, message string) (model.ChatRecord, error)
}

// Authorizer 보드 권한 조회
type Authorizer interface {
	RoleFor(ctx context.Context, boardID string, userID int64) (model.Role, error)
}

// PresenceDirectory 인스턴스 간 공유되는 온라인 목록 (선택)
type PresenceDirectory interface {
	MarkOnline(ctx context.Context, boardID string, member model.OnlineMember) error
	MarkOffline(ctx context.Context, boardID, connectionID string) error
	Heartbeat(ctx context.Context, boardID string, connectionIDs []string) error
}

// =============================================================================
// Hub
// =============================================================================

// Options 룸 동작 설정
type Options struct {
	LockTTL           time.Duration // 0이면 만료 없음
	SweepInterval     time.Duration
	HeartbeatInterval time.Duration
	HistoryLimit      int
	MaxElements       int
	MaxChatLength     int
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 20 * time.Second
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = history.DefaultLimit
	}
	return o
}

// Hub 보드 룸 관리 및 이벤트 라우팅. 권한 검사는 여기서만 한다.
//
// 잠금 순서: Hub.mu → Room.mu
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	boards    BoardRepository
	chat      ChatLog
	auth      Authorizer
	directory PresenceDirectory // nil 허용

	opts Options
	now  func() time.Time
}

// NewHub Hub 생성
func NewHub(boards BoardRepository, chat ChatLog, auth Authorizer, directory PresenceDirectory, opts Options) *Hub {
	return &Hub{
		rooms:     make(map[string]*Room),
		boards:    boards,
		chat:      chat,
		auth:      auth,
		directory: directory,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// Dispatch 수신 프레임 하나를 처리한다. 실패는 요청자에게만 error 이벤트로 알린다.
func (h *Hub) Dispatch(ctx context.Context, s *session.Session, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		h.reject(s, "", fmt.Errorf("%w: malformed envelope", ErrInvalidPayload))
		metrics.Events.WithLabelValues("malformed", CodeInvalidPayload).Inc()
		return
	}

	start := time.Now()
	err := h.route(ctx, s, env)

	label := env.Type
	if errors.Is(err, ErrUnknownEvent) {
		label = "unknown"
	}
	result := "ok"
	if err != nil {
		result = CodeOf(err)
		h.reject(s, env.Type, err)
	}
	metrics.Events.WithLabelValues(label, result).Inc()
	metrics.EventLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

func (h *Hub) route(ctx context.Context, s *session.Session, env Envelope) error {
	switch env.Type {
	case EventPing:
		s.Send(encode(EventPong, nil))
		return nil

	case EventJoinBoard:
		var p JoinPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		return h.Join(ctx, s, p.BoardID)

	case EventLeaveBoard:
		var p BoardRef
		if len(env.Payload) > 0 && !bytes.Equal(env.Payload, []byte("null")) {
			if err := decodePayload(env.Payload, &p); err != nil {
				return err
			}
		}
		if p.BoardID != "" && p.BoardID != s.BoardID() {
			return ErrBoardMismatch
		}
		return h.Leave(ctx, s)

	case EventShapeUpdate:
		var p ShapeUpdatePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		if p.Shapes == nil {
			return fmt.Errorf("%w: shapes is required", ErrInvalidPayload)
		}
		return h.ShapeUpdate(ctx, s, p.BoardID, *p.Shapes)

	case EventLineUpdate:
		var p LineUpdatePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		if p.Lines == nil {
			return fmt.Errorf("%w: lines is required", ErrInvalidPayload)
		}
		return h.LineUpdate(ctx, s, p.BoardID, *p.Lines)

	case EventElementOps:
		var p ElementOpsPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		return h.ElementOps(ctx, s, p.BoardID, p.Ops)

	case EventLockObject, EventUnlockObject:
		var p LockPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		if p.ShapeIndex == nil {
			return fmt.Errorf("%w: shapeIndex is required", ErrInvalidPayload)
		}
		if env.Type == EventLockObject {
			return h.Lock(ctx, s, p.BoardID, *p.ShapeIndex)
		}
		return h.Unlock(ctx, s, p.BoardID, *p.ShapeIndex)

	case EventCursorMove:
		var p CursorMovePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		if p.X == nil || p.Y == nil {
			return fmt.Errorf("%w: x and y are required", ErrInvalidPayload)
		}
		return h.CursorMove(ctx, s, p.BoardID, *p.X, *p.Y, p.Name)

	case EventCursorLeft:
		var p CursorLeftPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		return h.CursorLeft(ctx, s, p.BoardID, p.UserID)

	case EventChatMessage:
		var p ChatPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		return h.ChatMessage(ctx, s, p.BoardID, p.User, p.Message)

	case EventUndo, EventRedo, EventSaveBoard:
		var p BoardRef
		if err := decodePayload(env.Payload, &p); err != nil {
			return err
		}
		switch env.Type {
		case EventUndo:
			return h.Undo(ctx, s, p.BoardID)
		case EventRedo:
			return h.Redo(ctx, s, p.BoardID)
		default:
			return h.SaveBoard(ctx, s, p.BoardID)
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// reject 요청자에게만 error 이벤트 전송
func (h *Hub) reject(s *session.Session, event string, err error) {
	code := CodeOf(err)
	message := err.Error()
	switch code {
	case CodePersistenceFailed, CodeInternal:
		log.Printf("[RoomHub] %s from %s failed: %v", event, s.ID, err)
		message = "request could not be completed"
	}
	s.Send(encode(EventError, ErrorPayload{Event: event, Code: code, Message: message}))
}

// =============================================================================
// Membership
// =============================================================================

// Join 보드 참여. 다른 보드에 있으면 먼저 나간다.
func (h *Hub) Join(ctx context.Context, s *session.Session, boardID string) error {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return fmt.Errorf("%w: boardId is required", ErrInvalidPayload)
	}
	if s.IsClosed() {
		return ErrSessionClosed
	}

	if current := s.BoardID(); current != "" {
		if current == boardID {
			return h.resync(s, boardID)
		}
		_ = h.Leave(ctx, s)
	}

	role, err := h.authorize(ctx, boardID, s.UserID)
	if err != nil {
		return err
	}

	var members int
	for {
		room := h.getOrCreateRoom(boardID)
		if err := room.ensureLoaded(ctx, h.boards, h.opts.MaxElements); err != nil {
			h.removeIfEmpty(room)
			return err
		}

		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}
		if !s.Join(boardID, role) {
			room.mu.Unlock()
			h.removeIfEmpty(room)
			return ErrSessionClosed
		}
		room.members[s.ID] = s
		room.joinedAt[s.ID] = h.now()
		room.histories[s.ID] = history.NewManager(h.opts.HistoryLimit)
		room.sendState(s, role)
		members = len(room.members)
		room.mu.Unlock()
		break
	}

	metrics.Connections.Inc()
	h.markOnline(boardID, s, role)
	log.Printf("[Room %s] %s joined (user=%d, role=%s), members: %d", boardID, s.ID, s.UserID, role, members)
	return nil
}

// resync 같은 보드에 다시 join하면 상태만 재전송
func (h *Hub) resync(s *session.Session, boardID string) error {
	room, err := h.lockRoom(s, boardID, false)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	room.sendState(s, s.Role())
	return nil
}

func (h *Hub) authorize(ctx context.Context, boardID string, userID int64) (model.Role, error) {
	role, err := h.auth.RoleFor(ctx, boardID, userID)
	switch {
	case err == nil:
		if !role.Valid() {
			return "", fmt.Errorf("%w: unknown role %q", ErrForbidden, role)
		}
		return role, nil
	case errors.Is(err, model.ErrBoardNotFound):
		return "", fmt.Errorf("%w: %s", ErrBoardNotFound, boardID)
	case errors.Is(err, model.ErrNotCollaborator):
		return "", fmt.Errorf("%w: not a collaborator of this board", ErrForbidden)
	default:
		return "", fmt.Errorf("%w: resolve role: %w", ErrPersistence, err)
	}
}

// Leave 현재 보드에서 나간다 (연결은 유지)
func (h *Hub) Leave(ctx context.Context, s *session.Session) error {
	boardID := s.BoardID()
	if boardID == "" {
		return ErrNotJoined
	}
	h.leaveRoom(s, boardID)
	s.Leave()
	return nil
}

// Disconnect 연결 종료 처리: 룸에서 제거하고 모든 룸에서 이 연결의 락을 해제한다
func (h *Hub) Disconnect(s *session.Session) {
	boardID := s.BoardID()
	s.Close()

	if boardID != "" {
		h.leaveRoom(s, boardID)
	}
	h.releaseEverywhere(s.ID)
}

func (h *Hub) leaveRoom(s *session.Session, boardID string) {
	h.mu.Lock()
	room, ok := h.rooms[boardID]
	if !ok {
		h.mu.Unlock()
		return
	}

	room.mu.Lock()
	if _, member := room.members[s.ID]; !member {
		room.mu.Unlock()
		h.mu.Unlock()
		return
	}

	delete(room.members, s.ID)
	delete(room.joinedAt, s.ID)
	delete(room.histories, s.ID)

	released := room.locks.ReleaseAll(s.ID)
	for _, index := range released {
		room.broadcastLock(index, "")
	}
	if room.cursors.Remove(s.ID) {
		room.broadcast(encode(EventCursorsUpdate, room.cursors.Snapshot()), "")
	}

	remaining := len(room.members)
	held := room.locks.Len()
	if remaining == 0 {
		room.closed = true
		delete(h.rooms, boardID)
		metrics.Rooms.Dec()
	}
	room.mu.Unlock()
	h.mu.Unlock()

	metrics.Connections.Dec()
	metrics.LockTransitions.WithLabelValues("released").Add(float64(len(released)))
	h.markOffline(boardID, s.ID)

	log.Printf("[Room %s] %s left, released %d lock(s), remaining: %d (locks held: %d)", boardID, s.ID, len(released), remaining, held)
	if remaining == 0 {
		log.Printf("[RoomHub] Removed room: %s", boardID)
	}
}

func (h *Hub) releaseEverywhere(connID string) {
	for _, room := range h.snapshotRooms() {
		room.mu.Lock()
		released := room.locks.ReleaseAll(connID)
		for _, index := range released {
			room.broadcastLock(index, "")
		}
		room.mu.Unlock()

		if len(released) > 0 {
			metrics.LockTransitions.WithLabelValues("released").Add(float64(len(released)))
			log.Printf("[Room %s] Released %d stale lock(s) of %s", room.ID, len(released), connID)
		}
	}
}

func (h *Hub) getOrCreateRoom(boardID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[boardID]; ok {
		return room
	}
	room := newRoom(boardID, h.opts, h.clock)
	h.rooms[boardID] = room
	metrics.Rooms.Inc()
	log.Printf("[RoomHub] Created room: %s", boardID)
	return room
}

func (h *Hub) removeIfEmpty(room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || len(room.members) > 0 {
		return
	}
	room.closed = true
	if h.rooms[room.ID] == room {
		delete(h.rooms, room.ID)
		metrics.Rooms.Dec()
	}
}

// lockRoom 요청 연결이 참여 중인 룸을 Room.mu를 잡은 상태로 반환
func (h *Hub) lockRoom(s *session.Session, boardID string, needEdit bool) (*Room, error) {
	if boardID == "" {
		return nil, fmt.Errorf("%w: boardId is required", ErrInvalidPayload)
	}
	current := s.BoardID()
	if current == "" || s.IsClosed() {
		return nil, ErrNotJoined
	}
	if current != boardID {
		return nil, fmt.Errorf("%w: joined %s", ErrBoardMismatch, current)
	}
	if needEdit && !s.Role().CanEdit() {
		return nil, fmt.Errorf("%w: editor role required", ErrForbidden)
	}

	h.mu.RLock()
	room, ok := h.rooms[boardID]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrNotJoined
	}

	room.mu.Lock()
	if room.closed || room.members[s.ID] != s {
		room.mu.Unlock()
		return nil, ErrNotJoined
	}
	return room, nil
}

func (h *Hub) snapshotRooms() []*Room {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// =============================================================================
// Document events
// =============================================================================

// ShapeUpdate shapes 배열 전체 교체 후 다른 멤버에게 전파
func (h *Hub) ShapeUpdate(ctx context.Context, s *session.Session, boardID string, shapes []model.Element) error {
	return h.replace(s, boardID, model.KindShape, shapes)
}

// LineUpdate lines 배열 전체 교체 후 다른 멤버에게 전파
func (h *Hub) LineUpdate(ctx context.Context, s *session.Session, boardID string, lines []model.Element) error {
	return h.replace(s, boardID, model.KindLine, lines)
}

func (h *Hub) replace(s *session.Session, boardID string, kind model.ElementKind, elements []model.Element) error {
	if err := h.validateElements(kind, elements); err != nil {
		return err
	}

	room, err := h.lockRoom(s, boardID, true)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	author := userKey(s)
	stored := room.doc.Lines()
	if kind == model.KindShape {
		stored = room.doc.Shapes()
	}
	byID := make(map[string]model.Element, len(stored))
	for _, e := range stored {
		byID[e.ID] = e
	}
	stamped := make([]model.Element, len(elements))
	for i, e := range elements {
		if prev, ok := byID[e.ID]; ok && e.ID != "" {
			e = e.WithAuthorOf(prev)
		} else {
			e = e.WithAuthor(author)
		}
		stamped[i] = e
	}

	prev := room.doc.Current()
	var res ReplaceResult
	if kind == model.KindShape {
		res, err = room.doc.ReplaceShapes(stamped)
	} else {
		res, err = room.doc.ReplaceLines(stamped)
	}
	if err != nil {
		return err
	}
	if res.Changed {
		h.saveHistory(room, s, prev)
	}

	// id를 새로 부여했으면 보낸 쪽도 정본을 받아야 한다
	except := s.ID
	if res.AssignedIDs {
		except = ""
	}
	if kind == model.KindShape {
		room.broadcast(encode(EventRemoteShapeUpdate, room.doc.Shapes()), except)
		h.reconcileLocks(room)
	} else {
		room.broadcast(encode(EventRemoteLineUpdate, room.doc.Lines()), except)
	}
	return nil
}

func (h *Hub) validateElements(kind model.ElementKind, elements []model.Element) error {
	if h.opts.MaxElements > 0 && len(elements) > h.opts.MaxElements {
		return fmt.Errorf("%w: %d %ss exceeds limit %d", ErrTooManyElements, len(elements), kind, h.opts.MaxElements)
	}
	for i, e := range elements {
		if err := e.Validate(kind); err != nil {
			return fmt.Errorf("%w: %s %d: %w", ErrInvalidPayload, kind, i, err)
		}
	}
	return nil
}

// ElementOps 요소 단위 연산 배치를 원자적으로 적용하고 모든 멤버에게 전파
func (h *Hub) ElementOps(ctx context.Context, s *session.Session, boardID string, ops []model.ElementOp) error {
	if len(ops) == 0 {
		return fmt.Errorf("%w: ops is empty", ErrInvalidPayload)
	}

	room, err := h.lockRoom(s, boardID, true)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	author := userKey(s)
	for i := range ops {
		if ops[i].Op == model.OpCreate && ops[i].Element != nil {
			el := ops[i].Element.WithAuthor(author)
			ops[i].Element = &el
		}
	}

	prev := room.doc.Current()
	applied, err := room.doc.Apply(ops)
	if err != nil {
		if errors.Is(err, ErrTooManyElements) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(applied) == 0 {
		return nil
	}

	h.saveHistory(room, s, prev)
	room.broadcast(encode(EventRemoteElementOps, ElementOpsUpdate{Ops: applied}), "")
	h.reconcileLocks(room)
	return nil
}

// Undo 요청자 본인 요소만 직전 스냅샷으로 되돌리고 결과를 모든 멤버에게 전파
func (h *Hub) Undo(ctx context.Context, s *session.Session, boardID string) error {
	return h.travel(s, boardID, true)
}

// Redo Undo의 역연산
func (h *Hub) Redo(ctx context.Context, s *session.Session, boardID string) error {
	return h.travel(s, boardID, false)
}

func (h *Hub) travel(s *session.Session, boardID string, undo bool) error {
	room, err := h.lockRoom(s, boardID, true)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	m := room.histories[s.ID]
	var (
		result model.Document
		ok     bool
	)
	if undo {
		result, ok = m.Undo(room.doc.Current(), userKey(s))
	} else {
		result, ok = m.Redo(room.doc.Current(), userKey(s))
	}

	if ok {
		room.doc.Set(result)
		room.broadcast(encode(EventRemoteShapeUpdate, room.doc.Shapes()), "")
		room.broadcast(encode(EventRemoteLineUpdate, room.doc.Lines()), "")
		h.reconcileLocks(room)
	}
	s.Send(encode(EventHistoryState, HistoryState{CanUndo: m.CanUndo(), CanRedo: m.CanRedo()}))
	return nil
}

// saveHistory 변경 직전 문서를 요청자 히스토리에 저장. Room.mu 보유 상태에서 호출.
func (h *Hub) saveHistory(room *Room, s *session.Session, prev model.Document) {
	m, ok := room.histories[s.ID]
	if !ok {
		return
	}
	m.Save(prev)
	s.Send(encode(EventHistoryState, HistoryState{CanUndo: m.CanUndo(), CanRedo: m.CanRedo()}))
}

// reconcileLocks shapes 변경으로 다른 shape를 가리키게 된 락 해제. Room.mu 보유 상태에서 호출.
func (h *Hub) reconcileLocks(room *Room) {
	released := room.locks.Reconcile(room.doc.Shapes())
	for _, index := range released {
		room.broadcastLock(index, "")
	}
	if len(released) > 0 {
		metrics.LockTransitions.WithLabelValues("invalidated").Add(float64(len(released)))
	}
}

// SaveBoard 현재 문서를 저장소에 저장 (요청자에게만 결과 전송)
func (h *Hub) SaveBoard(ctx context.Context, s *session.Session, boardID string) error {
	room, err := h.lockRoom(s, boardID, true)
	if err != nil {
		return err
	}
	doc := room.doc.State()
	version := room.doc.Version()
	room.mu.Unlock()

	if err := h.boards.Save(ctx, boardID, doc); err != nil {
		return fmt.Errorf("%w: save board: %w", ErrPersistence, err)
	}
	log.Printf("[Room %s] Saved by %s (version %d, %d shapes, %d lines)", boardID, s.ID, version, len(doc.Shapes), len(doc.Lines))
	s.Send(encode(EventBoardSaved, BoardSaved{BoardID: boardID, SavedAt: h.now()}))
	return nil
}

// =============================================================================
// Locks
// =============================================================================

// Lock shapeIndex 락 획득 시도. 거절되면 요청자에게만 lock-denied.
func (h *Hub) Lock(ctx context.Context, s *session.Session, boardID string, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: shapeIndex must be non-negative", ErrInvalidPayload)
	}

	room, err := h.lockRoom(s, boardID, true)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	res := room.locks.Acquire(index, s.ID, room.doc.ShapeIDAt(index))
	switch {
	case res.Granted:
		room.broadcastLock(index, s.ID)
		metrics.LockTransitions.WithLabelValues("granted").Inc()
	case res.Renewed:
		metrics.LockTransitions.WithLabelValues("renewed").Inc()
	default:
		holder := res.Holder
		s.Send(encode(EventLockDenied, LockUpdate{ShapeIndex: index, LockedBy: &holder}))
		metrics.LockTransitions.WithLabelValues("denied").Inc()
	}
	return nil
}

// Unlock 보유자 본인일 때만 해제. 아니면 아무 일도 없다.
func (h *Hub) Unlock(ctx context.Context, s *session.Session, boardID string, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: shapeIndex must be non-negative", ErrInvalidPayload)
	}

	room, err := h.lockRoom(s, boardID, true)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if room.locks.Release(index, s.ID) {
		room.broadcastLock(index, "")
		metrics.LockTransitions.WithLabelValues("released").Inc()
	}
	return nil
}

// SweepLocks 만료된 락 임대를 해제하고 알린다
func (h *Hub) SweepLocks() int {
	total := 0
	for _, room := range h.snapshotRooms() {
		room.mu.Lock()
		expired := room.locks.Expire()
		for _, l := range expired {
			room.broadcastLock(l.Index, "")
		}
		room.mu.Unlock()

		for _, l := range expired {
			log.Printf("[Room %s] Lock on shape %d held by %s expired", room.ID, l.Index, l.Holder)
		}
		total += len(expired)
	}
	if total > 0 {
		metrics.LockTransitions.WithLabelValues("expired").Add(float64(total))
	}
	return total
}

// =============================================================================
// Presence & chat
// =============================================================================

// CursorMove 커서 갱신 후 전체 커서 맵을 모든 멤버(본인 포함)에게 전파
func (h *Hub) CursorMove(ctx context.Context, s *session.Session, boardID string, x, y float64, name string) error {
	room, err := h.lockRoom(s, boardID, false)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if name == "" {
		name = s.Nickname
	}
	room.cursors.Upsert(s.ID, Cursor{X: x, Y: y, Name: name})
	room.broadcast(encode(EventCursorsUpdate, room.cursors.Snapshot()), "")
	return nil
}

// CursorLeft 커서가 캔버스를 벗어남: 다른 멤버에게 remove-cursor 전파
func (h *Hub) CursorLeft(ctx context.Context, s *session.Session, boardID string, userID json.RawMessage) error {
	room, err := h.lockRoom(s, boardID, false)
	if err != nil {
		return err
	}
	defer room.mu.Unlock()

	if len(userID) == 0 || bytes.Equal(userID, []byte("null")) {
		userID = json.RawMessage(strconv.Quote(userKey(s)))
	}
	room.cursors.Remove(s.ID)
	room.broadcast(encode(EventRemoveCursor, userID), s.ID)
	return nil
}

// ChatMessage 채팅 저장 후 저장된 레코드를 모든 멤버(본인 포함)에게 전파
func (h *Hub) ChatMessage(ctx context.Context, s *session.Session, boardID, user, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidPayload)
	}
	if h.opts.MaxChatLength > 0 && utf8.RuneCountInString(message) > h.opts.MaxChatLength {
		message = string([]rune(message)[:h.opts.MaxChatLength])
	}
	user = strings.TrimSpace(user)
	if user == "" {
		user = s.Nickname
	}
	if utf8.RuneCountInString(user) > model.MaxChatUserLength {
		user = string([]rune(user)[:model.MaxChatUserLength])
	}

	room, err := h.lockRoom(s, boardID, false)
	if err != nil {
		return err
	}
	room.mu.Unlock()

	room.chatMu.Lock()
	defer room.chatMu.Unlock()

	record, err := h.chat.Append(ctx, boardID, user, message)
	if err != nil {
		return fmt.Errorf("%w: append chat: %w", ErrPersistence, err)
	}

	room.mu.Lock()
	room.broadcast(encode(EventChatMessage, record), "")
	room.mu.Unlock()
	return nil
}

// =============================================================================
// Background
// =============================================================================

// Run 락 스위퍼와 온라인 목록 하트비트. ctx가 끝나면 반환.
func (h *Hub) Run(ctx context.Context) {
	sweep := time.NewTicker(h.opts.SweepInterval)
	defer sweep.Stop()
	heartbeat := time.NewTicker(h.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	log.Printf("[RoomHub] Started (lock ttl: %v, sweep: %v)", h.opts.LockTTL, h.opts.SweepInterval)
	defer log.Println("[RoomHub] Stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			h.SweepLocks()
		case <-heartbeat.C:
			h.heartbeat(ctx)
		}
	}
}

func (h *Hub) heartbeat(ctx context.Context) {
	if h.directory == nil {
		return
	}
	for _, room := range h.snapshotRooms() {
		room.mu.Lock()
		ids := room.memberIDs()
		room.mu.Unlock()
		if len(ids) == 0 {
			continue
		}

		hbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := h.directory.Heartbeat(hbCtx, room.ID, ids); err != nil {
			log.Printf("[RoomHub] Presence heartbeat failed for %s: %v", room.ID, err)
		}
		cancel()
	}
}

func (h *Hub) markOnline(boardID string, s *session.Session, role model.Role) {
	if h.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	member := model.OnlineMember{
		ConnectionID: s.ID,
		UserID:       s.UserID,
		Nickname:     s.Nickname,
		Role:         role,
		JoinedAt:     h.now(),
	}
	if err := h.directory.MarkOnline(ctx, boardID, member); err != nil {
		log.Printf("[RoomHub] Failed to mark %s online: %v", s.ID, err)
	}
}

func (h *Hub) markOffline(boardID, connID string) {
	if h.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.directory.MarkOffline(ctx, boardID, connID); err != nil {
		log.Printf("[RoomHub] Failed to mark %s offline: %v", connID, err)
	}
}

// =============================================================================
// Introspection
// =============================================================================

// Members 보드의 로컬 접속자 (룸이 없으면 nil)
func (h *Hub) Members(boardID string) []model.OnlineMember {
	h.mu.RLock()
	room, ok := h.rooms[boardID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.Members()
}

// Document 활성 룸의 현재 문서 복사본 (룸이 없으면 ok=false)
func (h *Hub) Document(boardID string) (model.Document, bool) {
	h.mu.RLock()
	room, ok := h.rooms[boardID]
	h.mu.RUnlock()
	if !ok {
		return model.Document{}, false
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return model.Document{}, false
	}
	return room.doc.State(), true
}

// Stats 활성 룸 수, 참여 연결 수
func (h *Hub) Stats() (rooms, connections int) {
	for _, room := range h.snapshotRooms() {
		room.mu.Lock()
		connections += len(room.members)
		room.mu.Unlock()
		rooms++
	}
	return rooms, connections
}

func (h *Hub) clock() time.Time {
	return h.now()
}

// userKey createdBy 비교에 쓰는 사용자 키
func userKey(s *session.Session) string {
	return strconv.FormatInt(s.UserID, 10)
}
