package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"canvas-backend/internal/metrics"
	"canvas-backend/internal/model"
)

// State 보드 연결 상태
type State int

const (
	StateDisconnected State = iota // 보드 미참여
	StateJoined                    // 보드 참여 중
	StateClosed                    // 연결 종료
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session 클라이언트 연결 세션 (Thread-Safe)
type Session struct {
	ID          string // 연결 ID (락 holder, 커서 키로 사용)
	UserID      int64
	Nickname    string
	ConnectedAt time.Time

	// 동시성 제어
	mu sync.RWMutex

	state   State
	boardID string
	role    model.Role

	// 송신 큐 (writer 고루틴이 소비)
	outbound chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
}

// New 새 세션 생성
func New(userID int64, nickname string, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		Nickname:    nickname,
		ConnectedAt: time.Now(),
		state:       StateDisconnected,
		outbound:    make(chan []byte, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context 세션 컨텍스트 반환 (Close 또는 송신 큐 포화 시 취소됨)
func (s *Session) Context() context.Context {
	return s.ctx
}

// Outbound 송신 큐
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

// Send 프레임을 송신 큐에 넣는다 (논블로킹).
// 큐가 가득 차면 프레임을 버리고 세션 컨텍스트를 취소해 재접속을 유도한다.
func (s *Session) Send(frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateClosed {
		return false
	}

	select {
	case s.outbound <- frame:
		return true
	default:
		log.Printf("[Session %s] Send buffer full, dropping frame and closing (user=%d)", s.ID, s.UserID)
		metrics.DroppedFrames.Inc()
		s.cancel()
		return false
	}
}

// Join 보드 참여 상태로 전환
func (s *Session) Join(boardID string, role model.Role) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false
	}
	s.state = StateJoined
	s.boardID = boardID
	s.role = role
	return true
}

// Leave 보드 미참여 상태로 전환
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateDisconnected
	s.boardID = ""
	s.role = ""
}

// BoardID 참여 중인 보드 ID (없으면 빈 문자열)
func (s *Session) BoardID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.boardID
}

// Role 참여 중인 보드에서의 권한
func (s *Session) Role() model.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.role
}

// currentState 현재 상태 조회
func (s *Session) currentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Duration 연결 유지 시간
func (s *Session) Duration() time.Duration {
	return time.Since(s.ConnectedAt)
}

// Close 세션 정리. 보드 ID는 Disconnect 처리를 위해 남겨 둔다.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	s.state = StateClosed
	s.cancel()
	close(s.outbound)
}

// IsClosed 세션 종료 여부 확인
func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == StateClosed
}
