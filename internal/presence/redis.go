package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"canvas-backend/internal/model"
)

// DefaultTTL 연결 항목 만료 시간 (하트비트가 갱신)
const DefaultTTL = 60 * time.Second

// PresenceData Redis에 저장될 접속 데이터
type PresenceData struct {
	model.OnlineMember
	LastHeartbeat int64  `json:"lastHeartbeat"`
	ServerID      string `json:"serverId"` // 멀티 서버 확장 대비
}

// Manager 보드별 온라인 목록 관리자 (인스턴스 간 공유)
type Manager struct {
	client   *redis.Client
	serverID string
	ttl      time.Duration
	now      func() time.Time
}

// NewManager 생성자
func NewManager(client *redis.Client, serverID string) *Manager {
	return &Manager{
		client:   client,
		serverID: serverID,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
}

// Key 생성 유틸
func connKey(boardID, connID string) string {
	return fmt.Sprintf("presence:board:%s:conn:%s", boardID, connID)
}

func boardKey(boardID string) string {
	return fmt.Sprintf("presence:board:%s:conns", boardID)
}

// MarkOnline 연결 등록 (join)
func (m *Manager) MarkOnline(ctx context.Context, boardID string, member model.OnlineMember) error {
	data, err := json.Marshal(PresenceData{
		OnlineMember:  member,
		LastHeartbeat: m.now().Unix(),
		ServerID:      m.serverID,
	})
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, connKey(boardID, member.ConnectionID), data, m.ttl)
	pipe.SAdd(ctx, boardKey(boardID), member.ConnectionID)
	pipe.Expire(ctx, boardKey(boardID), 2*m.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// MarkOffline 연결 삭제 (leave, disconnect)
func (m *Manager) MarkOffline(ctx context.Context, boardID, connID string) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, connKey(boardID, connID))
	pipe.SRem(ctx, boardKey(boardID), connID)
	_, err := pipe.Exec(ctx)
	return err
}

// Heartbeat 생존 신고 (TTL 연장)
func (m *Manager) Heartbeat(ctx context.Context, boardID string, connIDs []string) error {
	if len(connIDs) == 0 {
		return nil
	}
	pipe := m.client.Pipeline()
	for _, id := range connIDs {
		pipe.Expire(ctx, connKey(boardID, id), m.ttl)
	}
	pipe.Expire(ctx, boardKey(boardID), 2*m.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// ListOnline 보드의 온라인 연결 목록 (참여 시각 순). 만료된 항목은 정리한다.
func (m *Manager) ListOnline(ctx context.Context, boardID string) ([]model.OnlineMember, error) {
	ids, err := m.client.SMembers(ctx, boardKey(boardID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.OnlineMember{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = connKey(boardID, id)
	}

	// MGET으로 한 번에 조회
	results, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	members := make([]model.OnlineMember, 0, len(results))
	var stale []interface{}
	for i, result := range results {
		strVal, ok := result.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}

		var data PresenceData
		if err := json.Unmarshal([]byte(strVal), &data); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		members = append(members, data.OnlineMember)
	}

	if len(stale) > 0 {
		m.client.SRem(ctx, boardKey(boardID), stale...)
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ConnectionID < members[j].ConnectionID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}
