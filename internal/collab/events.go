package collab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"canvas-backend/internal/model"
)

// 클라이언트 → 서버 이벤트
const (
	EventJoinBoard    = "join-board"
	EventLeaveBoard   = "leave-board"
	EventShapeUpdate  = "shape-update"
	EventLineUpdate   = "line-update"
	EventElementOps   = "element-ops"
	EventLockObject   = "lock-object"
	EventUnlockObject = "unlock-object"
	EventCursorMove   = "cursor-move"
	EventCursorLeft   = "cursor-left"
	EventChatMessage  = "chat-message"
	EventUndo         = "undo"
	EventRedo         = "redo"
	EventSaveBoard    = "save-board"
	EventPing         = "ping"
)

// 서버 → 클라이언트 이벤트
const (
	EventBoardState        = "board-state"
	EventRemoteShapeUpdate = "remote-shape-update"
	EventRemoteLineUpdate  = "remote-line-update"
	EventRemoteElementOps  = "remote-element-ops"
	EventRemoteLockUpdate  = "remote-lock-update"
	EventLockDenied        = "lock-denied"
	EventCursorsUpdate     = "cursors-update"
	EventRemoveCursor      = "remove-cursor"
	EventHistoryState      = "history-state"
	EventBoardSaved        = "board-saved"
	EventPong              = "pong"
	EventError             = "error"
)

// Envelope WebSocket 메시지 {type, payload}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outEnvelope 송신용
type outEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// encode 송신 프레임 직렬화
func encode(event string, payload any) []byte {
	data, err := json.Marshal(outEnvelope{Type: event, Payload: payload})
	if err != nil {
		log.Printf("[RoomHub] Failed to marshal %s: %v", event, err)
		return nil
	}
	return data
}

// decodePayload payload를 구조체로 파싱
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// ---- inbound payloads ----

// JoinPayload join-board는 {boardId} 또는 문자열 boardId 허용
type JoinPayload struct {
	BoardID string `json:"boardId"`
}

func (p *JoinPayload) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		p.BoardID = id
		return nil
	}
	type plain JoinPayload
	return json.Unmarshal(data, (*plain)(p))
}

type BoardRef struct {
	BoardID string `json:"boardId"`
}

type ShapeUpdatePayload struct {
	BoardID string           `json:"boardId"`
	Shapes  *[]model.Element `json:"shapes"`
}

type LineUpdatePayload struct {
	BoardID string           `json:"boardId"`
	Lines   *[]model.Element `json:"lines"`
}

type ElementOpsPayload struct {
	BoardID string            `json:"boardId"`
	Ops     []model.ElementOp `json:"ops"`
}

type LockPayload struct {
	BoardID    string `json:"boardId"`
	ShapeIndex *int   `json:"shapeIndex"`
}

type CursorMovePayload struct {
	BoardID string   `json:"boardId"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Name    string   `json:"name"`
}

type CursorLeftPayload struct {
	BoardID string          `json:"boardId"`
	UserID  json.RawMessage `json:"userId,omitempty"`
}

type ChatPayload struct {
	BoardID string `json:"boardId"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// ---- outbound payloads ----

// BoardState 참여 직후 전송하는 전체 상태
type BoardState struct {
	BoardID      string          `json:"boardId"`
	ConnectionID string          `json:"connectionId"`
	Role         model.Role      `json:"role"`
	Shapes       []model.Element `json:"shapes"`
	Lines        []model.Element `json:"lines"`
	Locks        map[int]string  `json:"locks"`
}

type LockUpdate struct {
	ShapeIndex int     `json:"shapeIndex"`
	LockedBy   *string `json:"lockedBy"`
}

type ElementOpsUpdate struct {
	Ops []model.ElementOp `json:"ops"`
}

type HistoryState struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

type BoardSaved struct {
	BoardID string    `json:"boardId"`
	SavedAt time.Time `json:"savedAt"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
