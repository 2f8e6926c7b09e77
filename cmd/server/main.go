package main

import (
	"log"

	"canvas-backend/internal/cache"
	"canvas-backend/internal/config"
	"canvas-backend/internal/database"
	"canvas-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	// Ping 테스트
	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	// DB 버전 확인
	var version string
	db.Raw("SELECT version()").Scan(&version)
	if len(version) > 50 {
		version = version[:50] + "..."
	}
	log.Printf("📦 PostgreSQL: %s", version)

	// Redis 연결 (선택). 실패해도 단일 인스턴스 모드로 계속 동작한다.
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Room.DocumentCacheTTL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable, running without cache: %v", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	} else {
		log.Println("ℹ️ REDIS_ADDR not set, running without cache")
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, db, redisClient)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
