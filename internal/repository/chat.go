package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"canvas-backend/internal/model"
)

// ChatRepository 보드 채팅 저장소
type ChatRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewChatRepository ChatRepository 생성
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db, now: time.Now}
}

// Append 메시지 저장 후 저장된 레코드 반환 (timestamp는 서버 시각)
func (r *ChatRepository) Append(ctx context.Context, boardID, user, message string) (model.ChatRecord, error) {
	msg := model.ChatMessage{
		BoardID:   boardID,
		User:      user,
		Message:   message,
		Timestamp: r.now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return model.ChatRecord{}, fmt.Errorf("append chat for %s: %w", boardID, err)
	}
	return msg.Record(), nil
}

// List 채팅 기록 (오래된 순). limit > 0이면 최근 limit개만.
func (r *ChatRepository) List(ctx context.Context, boardID string, limit int) ([]model.ChatRecord, error) {
	var messages []model.ChatMessage

	query := r.db.WithContext(ctx).Where("board_id = ?", boardID)
	if limit > 0 {
		query = query.Order(byTime(true)).Limit(limit)
	} else {
		query = query.Order(byTime(false))
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list chat for %s: %w", boardID, err)
	}

	records := make([]model.ChatRecord, len(messages))
	for i, m := range messages {
		records[i] = m.Record()
	}
	if limit > 0 {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	return records, nil
}

// byTime timestamp, id 순 정렬 (timestamp는 예약어라 컬럼명을 인용한다)
func byTime(desc bool) clause.OrderBy {
	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: desc},
		{Column: clause.Column{Name: "id"}, Desc: desc},
	}}
}
