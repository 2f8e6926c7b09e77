package collab

import (
	"errors"
)

var (
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrNotJoined       = errors.New("connection has not joined a board")
	ErrBoardMismatch   = errors.New("event targets a board the connection has not joined")
	ErrForbidden       = errors.New("forbidden")
	ErrBoardNotFound   = errors.New("board not found")
	ErrPersistence     = errors.New("persistence failed")
	ErrTooManyElements = errors.New("too many elements")
	ErrSessionClosed   = errors.New("session closed")
)

// 에러 코드 (error 이벤트의 code 필드)
const (
	CodeInvalidPayload    = "invalid_payload"
	CodeUnknownEvent      = "unknown_event"
	CodeNotJoined         = "not_joined"
	CodeBoardMismatch     = "board_mismatch"
	CodeForbidden         = "forbidden"
	CodeBoardNotFound     = "board_not_found"
	CodePersistenceFailed = "persistence_failed"
	CodeInternal          = "internal"
)

// CodeOf 에러를 전송용 코드로 변환
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrTooManyElements):
		return CodeInvalidPayload
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	case errors.Is(err, ErrNotJoined), errors.Is(err, ErrSessionClosed):
		return CodeNotJoined
	case errors.Is(err, ErrBoardMismatch):
		return CodeBoardMismatch
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrBoardNotFound):
		return CodeBoardNotFound
	case errors.Is(err, ErrPersistence):
		return CodePersistenceFailed
	default:
		return CodeInternal
	}
}
