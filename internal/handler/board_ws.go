package handler

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"

	"canvas-backend/internal/collab"
	"canvas-backend/internal/config"
	"canvas-backend/internal/session"
)

// BoardWSHandler 보드 협업 WebSocket 핸들러. 프레임 해석과 라우팅은 collab.Hub가 한다.
type BoardWSHandler struct {
	hub        *collab.Hub
	cfg        config.WebSocketConfig
	sendBuffer int
}

// NewBoardWSHandler BoardWSHandler 생성
func NewBoardWSHandler(hub *collab.Hub, cfg config.WebSocketConfig, sendBuffer int) *BoardWSHandler {
	return &BoardWSHandler{hub: hub, cfg: cfg, sendBuffer: sendBuffer}
}

// HandleWebSocket WebSocket 연결 처리
func (h *BoardWSHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userId").(int64)
	if !ok {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"code":"not_joined","message":"invalid session"}}`))
		c.Close()
		return
	}
	nickname, _ := c.Locals("nickname").(string)

	s := session.New(userID, nickname, h.sendBuffer)
	log.Printf("[BoardWS] Connected: %s (user=%d)", s.ID, userID)

	done := make(chan struct{})
	go h.writePump(c, s, done)

	defer func() {
		// 패닉 복구 - 서버 크래시 방지
		if r := recover(); r != nil {
			log.Printf("[BoardWS] Panic recovered for %s: %v", s.ID, r)
		}
		h.hub.Disconnect(s)
		<-done
		c.Close()
		log.Printf("[BoardWS] Disconnected: %s (user=%d, duration=%v)", s.ID, userID, s.Duration().Round(time.Second))
	}()

	h.readPump(c, s)
}

// readPump 수신 루프. pong이 PongWait 안에 오지 않으면 종료된다.
func (h *BoardWSHandler) readPump(c *websocket.Conn, s *session.Session) {
	if h.cfg.MaxMessageSize > 0 {
		c.SetReadLimit(h.cfg.MaxMessageSize)
	}
	c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("[BoardWS] Read error for %s: %v", s.ID, err)
			}
			return
		}
		c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if messageType != websocket.TextMessage {
			continue
		}
		h.hub.Dispatch(s.Context(), s, data)
	}
}

// writePump 송신 큐를 소켓에 쓰고 주기적으로 ping을 보낸다.
// 송신 큐가 넘쳐 세션 컨텍스트가 취소되면 연결을 끊어 클라이언트가 재접속/재동기화하게 한다.
func (h *BoardWSHandler) writePump(c *websocket.Conn, s *session.Session, done chan<- struct{}) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		// 읽기 루프를 깨운다
		c.Close()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-s.Outbound():
			c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("[BoardWS] Write error for %s: %v", s.ID, err)
				return
			}

		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.Context().Done():
			if !s.IsClosed() {
				log.Printf("[BoardWS] Send queue overflow, closing %s", s.ID)
				c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
				c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "send queue overflow"))
			}
			return
		}
	}
}
