package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"canvas-backend/internal/model"
)

// DefaultDocumentTTL 문서 캐시 기본 만료 시간
const DefaultDocumentTTL = 10 * time.Minute

// RedisClient 보드 문서 캐시 (read-through / write-through)
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient Redis 연결 후 캐시 생성
func NewRedisClient(addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return NewFromClient(client, ttl), nil
}

// NewFromClient 기존 클라이언트로 캐시 생성
func NewFromClient(client *redis.Client, ttl time.Duration) *RedisClient {
	if ttl <= 0 {
		ttl = DefaultDocumentTTL
	}
	return &RedisClient{client: client, ttl: ttl}
}

func documentKey(boardID string) string {
	return "board:" + boardID + ":document"
}

// GetDocument 캐시된 문서 조회. 없으면 ok=false.
func (r *RedisClient) GetDocument(ctx context.Context, boardID string) (model.Document, bool, error) {
	data, err := r.client.Get(ctx, documentKey(boardID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Document{}, false, nil
	}
	if err != nil {
		return model.Document{}, false, err
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		// 깨진 항목은 지우고 미스로 처리
		r.client.Del(ctx, documentKey(boardID))
		return model.Document{}, false, nil
	}
	if doc.Shapes == nil {
		doc.Shapes = []model.Element{}
	}
	if doc.Lines == nil {
		doc.Lines = []model.Element{}
	}
	return doc, true, nil
}

// SetDocument 문서 저장 (TTL 적용)
func (r *RedisClient) SetDocument(ctx context.Context, boardID string, doc model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, documentKey(boardID), data, r.ttl).Err()
}

// DeleteDocument 캐시 무효화
func (r *RedisClient) DeleteDocument(ctx context.Context, boardID string) error {
	return r.client.Del(ctx, documentKey(boardID)).Err()
}

// Client 내부 클라이언트 (presence 디렉터리와 연결 공유)
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
