package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var ErrNoClaims = errors.New("no auth claims in context")

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := extractToken(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// 토큰 검증
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		// 사용자 정보를 컨텍스트에 저장
		c.Locals("userID", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("nickname", claims.Nickname)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// extractToken Authorization 헤더 → access_token 쿠키 → ?token= 순서로 토큰 추출
// (브라우저 WebSocket은 헤더를 설정할 수 없어 쿼리 파라미터를 허용한다)
func extractToken(c *fiber.Ctx) (string, error) {
	if header := c.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}
	if cookie := c.Cookies("access_token"); cookie != "" {
		return cookie, nil
	}
	if query := c.Query("token"); query != "" {
		return query, nil
	}
	return "", errors.New("missing authorization token")
}

// GetClaimsFromContext AuthMiddleware가 저장한 클레임 조회
func GetClaimsFromContext(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok || claims == nil {
		return nil, ErrNoClaims
	}
	return claims, nil
}
