package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HealthChecker Redis 등 선택 컴포넌트 헬스체크
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HubStats 룸 허브 통계
type HubStats interface {
	Stats() (rooms, connections int)
}

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	db    *gorm.DB
	redis HealthChecker // nil이면 not_configured
	hub   HubStats
}

// NewHealthHandler HealthHandler 생성
func NewHealthHandler(db *gorm.DB, redis HealthChecker, hub HubStats) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, hub: hub}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status      string                    `json:"status"`
	Timestamp   string                    `json:"timestamp"`
	Checks      map[string]ComponentCheck `json:"checks"`
	Rooms       int                       `json:"rooms"`
	Connections int                       `json:"connections"`
}

// Check 전체 상태 확인 (DB + Redis + 룸 통계)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	// 1. Database 체크
	dbStart := time.Now()
	if err := h.pingDB(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	// 2. Redis 체크 (없으면 단일 인스턴스 모드)
	if h.redis != nil {
		redisStart := time.Now()
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		err := h.redis.Health(ctx)
		cancel()
		if err != nil {
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Checks["redis"] = ComponentCheck{
				Status: "degraded",
				Error:  "redis unreachable",
			}
		} else {
			response.Checks["redis"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(redisStart).String(),
			}
		}
	} else {
		response.Checks["redis"] = ComponentCheck{
			Status: "not_configured",
		}
	}

	if h.hub != nil {
		response.Rooms, response.Connections = h.hub.Stats()
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness 체크용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness 체크용 (DB 연결 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	if err := h.pingDB(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}

func (h *HealthHandler) pingDB() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
