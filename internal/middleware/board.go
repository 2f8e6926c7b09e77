package middleware

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"canvas-backend/internal/auth"
	"canvas-backend/internal/model"
)

// RoleResolver 보드 권한 조회 (service.CollaboratorService)
type RoleResolver interface {
	RoleFor(ctx context.Context, boardID string, userID int64) (model.Role, error)
}

// BoardMiddleware 보드 권한 미들웨어
type BoardMiddleware struct {
	roles RoleResolver
}

// NewBoardMiddleware BoardMiddleware 생성
func NewBoardMiddleware(roles RoleResolver) *BoardMiddleware {
	return &BoardMiddleware{roles: roles}
}

// RequireAccess 보드 소유자 또는 협업자 필수. 권한은 Locals("boardRole")에 저장.
func (m *BoardMiddleware) RequireAccess() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.GetClaimsFromContext(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		boardID := c.Params("id")
		if boardID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "board ID is required",
			})
		}

		role, err := m.roles.RoleFor(c.UserContext(), boardID, claims.UserID)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrBoardNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "board not found",
			})
		case errors.Is(err, model.ErrNotCollaborator):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "not a collaborator of this board",
			})
		default:
			log.Printf("[BoardMiddleware] Failed to resolve role for board %s: %v", boardID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to check permission",
			})
		}

		c.Locals("boardID", boardID)
		c.Locals("boardRole", role)
		return c.Next()
	}
}

// RequireEditor editor 권한 필수 (RequireAccess 뒤에 사용)
func (m *BoardMiddleware) RequireEditor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := GetBoardRole(c)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "board access required",
			})
		}
		if !role.CanEdit() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "editor permission required",
			})
		}
		return c.Next()
	}
}

// GetBoardRole RequireAccess가 저장한 권한 조회
func GetBoardRole(c *fiber.Ctx) (model.Role, bool) {
	role, ok := c.Locals("boardRole").(model.Role)
	return role, ok
}
