package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Room      RoomConfig
}

// RedisConfig Redis 설정 (Addr가 비어 있으면 비활성화)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Presence bool // 인스턴스 간 온라인 목록 공유
}

// Enabled Redis 사용 여부
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// AuthConfig 인증 설정
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	PingPeriod      time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
}

// RoomConfig 보드 룸(동기화 엔진) 설정
type RoomConfig struct {
	LockTTL          time.Duration // 0이면 만료 없음
	SweepInterval    time.Duration
	HistoryLimit     int
	MaxElements      int
	MaxChatLength    int
	SendBufferSize   int
	DocumentCacheTTL time.Duration
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	// 필수 환경 변수 검증
	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		log.Fatal("🚨 CRITICAL: JWT_SECRET must be changed from default value in production!")
	}

	return build(jwtSecret)
}

func build(jwtSecret string) *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			PingPeriod:      getDuration("WS_PING_PERIOD", 25*time.Second),
			PongWait:        getDuration("WS_PONG_WAIT", 60*time.Second),
			MaxMessageSize:  int64(getInt("WS_MAX_MESSAGE_SIZE", 4*1024*1024)),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			Presence: getBool("REDIS_PRESENCE", true),
		},
		Room: RoomConfig{
			LockTTL:          getDuration("LOCK_TTL", 2*time.Minute),
			SweepInterval:    getDuration("LOCK_SWEEP_INTERVAL", 5*time.Second),
			HistoryLimit:     getInt("HISTORY_LIMIT", 100),
			MaxElements:      getInt("MAX_ELEMENTS", 5000),
			MaxChatLength:    getInt("MAX_CHAT_LENGTH", 2000),
			SendBufferSize:   getInt("SEND_BUFFER_SIZE", 256),
			DocumentCacheTTL: getDuration("DOCUMENT_CACHE_TTL", 10*time.Minute),
		},
	}
}

// getRequiredEnv 필수 환경 변수 조회 (없으면 Fatal)
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("🚨 CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
