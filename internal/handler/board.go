package handler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"canvas-backend/internal/collab"
	"canvas-backend/internal/middleware"
	"canvas-backend/internal/model"
	"canvas-backend/internal/repository"
)

// OnlineLister 인스턴스 간 공유되는 온라인 목록 (presence.Manager)
type OnlineLister interface {
	ListOnline(ctx context.Context, boardID string) ([]model.OnlineMember, error)
}

// BoardHandler 보드 REST 핸들러
type BoardHandler struct {
	boards      *repository.BoardRepository
	chat        *repository.ChatRepository
	hub         *collab.Hub
	presence    OnlineLister // nil 허용
	maxElements int          // 0이면 제한 없음
}

// NewBoardHandler BoardHandler 생성
func NewBoardHandler(boards *repository.BoardRepository, chat *repository.ChatRepository, hub *collab.Hub, presence OnlineLister, maxElements int) *BoardHandler {
	return &BoardHandler{boards: boards, chat: chat, hub: hub, presence: presence, maxElements: maxElements}
}

// BoardResponse 보드 응답
type BoardResponse struct {
	ID    string         `json:"id"`
	Title string         `json:"title"`
	Role  model.Role     `json:"role"`
	Live  bool           `json:"live"`
	Data  model.Document `json:"data"`
}

// SaveBoardRequest 보드 저장 요청
type SaveBoardRequest struct {
	Data *model.Document `json:"data"`
}

// GetBoard 보드 조회. 협업 중인 룸이 있으면 현재 문서를 반환한다.
func (h *BoardHandler) GetBoard(c *fiber.Ctx) error {
	boardID := c.Params("id")

	board, err := h.boards.Get(c.UserContext(), boardID)
	if err != nil {
		return boardError(c, err)
	}

	doc, live := h.hub.Document(boardID)
	if !live {
		doc, err = model.ParseDocument(board.Data)
		if err != nil {
			log.Printf("[BoardHandler] Corrupt document for board %s: %v", boardID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read board",
			})
		}
	}

	role, _ := middleware.GetBoardRole(c)
	return c.JSON(BoardResponse{
		ID:    board.ID,
		Title: board.Title,
		Role:  role,
		Live:  live,
		Data:  doc,
	})
}

// SaveBoard 보드 문서 저장 (editor)
func (h *BoardHandler) SaveBoard(c *fiber.Ctx) error {
	boardID := c.Params("id")

	var req SaveBoardRequest
	if err := c.BodyParser(&req); err != nil || req.Data == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "data is required",
		})
	}
	if err := validateDocument(*req.Data, h.maxElements); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.boards.Save(c.UserContext(), boardID, *req.Data); err != nil {
		return boardError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Board saved"})
}

// GetChat 채팅 기록 조회 (?limit=N이면 최근 N개)
func (h *BoardHandler) GetChat(c *fiber.Ctx) error {
	boardID := c.Params("id")
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		limit = 0
	}

	records, err := h.chat.List(c.UserContext(), boardID, limit)
	if err != nil {
		log.Printf("[BoardHandler] Failed to list chat for %s: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch chat history",
		})
	}
	return c.JSON(records)
}

// GetOnline 온라인 연결 목록. Redis가 없거나 실패하면 이 인스턴스의 룸 정보로 응답.
func (h *BoardHandler) GetOnline(c *fiber.Ctx) error {
	boardID := c.Params("id")

	if h.presence != nil {
		members, err := h.presence.ListOnline(c.UserContext(), boardID)
		if err == nil {
			return c.JSON(members)
		}
		log.Printf("[BoardHandler] Presence lookup failed for %s: %v", boardID, err)
	}

	members := h.hub.Members(boardID)
	if members == nil {
		members = []model.OnlineMember{}
	}
	return c.JSON(members)
}

func validateDocument(doc model.Document, maxElements int) error {
	if n := len(doc.Shapes) + len(doc.Lines); maxElements > 0 && n > maxElements {
		return fmt.Errorf("%d elements exceeds limit %d", n, maxElements)
	}
	for _, s := range doc.Shapes {
		if err := s.Validate(model.KindShape); err != nil {
			return err
		}
	}
	for _, l := range doc.Lines {
		if err := l.Validate(model.KindLine); err != nil {
			return err
		}
	}
	return nil
}

func boardError(c *fiber.Ctx, err error) error {
	if errors.Is(err, model.ErrBoardNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "board not found",
		})
	}
	log.Printf("[BoardHandler] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "failed to access board",
	})
}
