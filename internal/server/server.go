package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"canvas-backend/internal/auth"
	"canvas-backend/internal/cache"
	"canvas-backend/internal/collab"
	"canvas-backend/internal/config"
	"canvas-backend/internal/handler"
	"canvas-backend/internal/metrics"
	"canvas-backend/internal/middleware"
	"canvas-backend/internal/model"
	"canvas-backend/internal/presence"
	"canvas-backend/internal/repository"
	"canvas-backend/internal/service"
)

// Server Fiber 서버 래퍼
type Server struct {
	app *fiber.App
	cfg *config.Config
	db  *gorm.DB

	hub             *collab.Hub
	boardHandler    *handler.BoardHandler
	boardWSHandler  *handler.BoardWSHandler
	healthHandler   *handler.HealthHandler
	boardMiddleware *middleware.BoardMiddleware
	jwtManager      *auth.JWTManager

	cancel context.CancelFunc
}

// New 새 서버 인스턴스 생성. redisClient가 nil이면 단일 인스턴스 모드 (캐시, 공유 presence 없음).
func New(cfg *config.Config, db *gorm.DB, redisClient *cache.RedisClient) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Canvas Collaboration Server",
		ServerHeader:          "Fiber",
		StrictRouting:         false,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384, // 16KB - 큰 헤더 허용
		WriteBufferSize:       16384,
		BodyLimit:             int(cfg.WebSocket.MaxMessageSize) + 1024*1024,
		DisableStartupMessage: false,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	// 저장소
	var documentCache repository.DocumentCache
	var health handler.HealthChecker
	if redisClient != nil {
		documentCache = redisClient
		health = redisClient
	}
	boards := repository.NewBoardRepository(db, documentCache)
	chat := repository.NewChatRepository(db)
	collaborators := service.NewCollaboratorService(db)

	// 공유 온라인 목록 (Redis)
	var directory collab.PresenceDirectory
	var online handler.OnlineLister
	if redisClient != nil && cfg.Redis.Presence {
		manager := presence.NewManager(redisClient.Client(), serverID())
		directory = manager
		online = manager
	}

	hub := collab.NewHub(boards, chat, collaborators, directory, collab.Options{
		LockTTL:           cfg.Room.LockTTL,
		SweepInterval:     cfg.Room.SweepInterval,
		HeartbeatInterval: presence.DefaultTTL / 3,
		HistoryLimit:      cfg.Room.HistoryLimit,
		MaxElements:       cfg.Room.MaxElements,
		MaxChatLength:     cfg.Room.MaxChatLength,
	})

	return &Server{
		app:             app,
		cfg:             cfg,
		db:              db,
		hub:             hub,
		boardHandler:    handler.NewBoardHandler(boards, chat, hub, online, cfg.Room.MaxElements),
		boardWSHandler:  handler.NewBoardWSHandler(hub, cfg.WebSocket, cfg.Room.SendBufferSize),
		healthHandler:   handler.NewHealthHandler(db, health, hub),
		boardMiddleware: middleware.NewBoardMiddleware(collaborators),
		jwtManager:      jwtManager,
	}
}

// serverID 멀티 인스턴스 구분용 ID
func serverID() string {
	if id := os.Getenv("SERVER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return uuid.NewString()
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))

	// 메트릭
	s.app.Use(metrics.Middleware())
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)
	s.app.Get("/metrics", metrics.Handler())

	// Rate Limiter 설정 (REST API 남용 방지)
	apiLimiter := limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Board 라우트 그룹 (인증 + 보드 접근 권한 필요)
	boardGroup := s.app.Group("/api/boards/:id",
		apiLimiter,
		auth.AuthMiddleware(s.jwtManager),
		s.boardMiddleware.RequireAccess(),
	)
	boardGroup.Get("", s.boardHandler.GetBoard)
	boardGroup.Put("", s.boardMiddleware.RequireEditor(), s.boardHandler.SaveBoard)
	boardGroup.Get("/chat", s.boardHandler.GetChat)
	boardGroup.Get("/online", s.boardHandler.GetOnline)

	// WebSocket 보드 협업 엔드포인트
	s.app.Get("/ws/board", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, auth.AuthMiddleware(s.jwtManager), func(c *fiber.Ctx) error {
		claims, err := auth.GetClaimsFromContext(c)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		nickname := claims.Nickname
		if nickname == "" {
			var user model.User
			if err := s.db.Select("nickname").Where("id = ?", claims.UserID).First(&user).Error; err == nil {
				nickname = user.Nickname
			}
		}

		c.Locals("userId", claims.UserID)
		c.Locals("nickname", nickname)
		return c.Next()
	}, websocket.New(s.boardWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(ctx)

	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.Shutdown(); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Canvas Collaboration Server starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/board", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
