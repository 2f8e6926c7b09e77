package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvas-backend/internal/auth"
	"canvas-backend/internal/model"
)

type stubRoles map[int64]model.Role

func (s stubRoles) RoleFor(ctx context.Context, boardID string, userID int64) (model.Role, error) {
	switch {
	case boardID == "missing":
		return "", model.ErrBoardNotFound
	case boardID == "broken":
		return "", errors.New("db down")
	}
	role, ok := s[userID]
	if !ok {
		return "", model.ErrNotCollaborator
	}
	return role, nil
}

func TestBoardMiddleware(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	mw := NewBoardMiddleware(stubRoles{1: model.RoleEditor, 2: model.RoleViewer})

	app := fiber.New()
	group := app.Group("/boards/:id", auth.AuthMiddleware(jwtManager), mw.RequireAccess())
	group.Get("/", func(c *fiber.Ctx) error {
		role, _ := GetBoardRole(c)
		return c.SendString(role.String())
	})
	group.Put("/", mw.RequireEditor(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	do := func(method, board string, user int64) int {
		token, err := jwtManager.GenerateAccessToken(user, "", "")
		require.NoError(t, err)
		req := httptest.NewRequest(method, "/boards/"+board+"/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, do("GET", "b1", 1))
	assert.Equal(t, fiber.StatusOK, do("GET", "b1", 2))
	assert.Equal(t, fiber.StatusForbidden, do("GET", "b1", 3))
	assert.Equal(t, fiber.StatusNotFound, do("GET", "missing", 1))
	assert.Equal(t, fiber.StatusInternalServerError, do("GET", "broken", 1))

	assert.Equal(t, fiber.StatusNoContent, do("PUT", "b1", 1))
	assert.Equal(t, fiber.StatusForbidden, do("PUT", "b1", 2))
}
