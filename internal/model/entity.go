package model

import (
	"time"
)

// User 사용자
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname   string    `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg *string   `gorm:"type:text" json:"profile_img,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Board 캔버스 보드
type Board struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title     string    `gorm:"type:varchar(200);not null;default:'Untitled'" json:"title"`
	OwnerID   int64     `gorm:"not null;index" json:"owner_id"`
	Data      *string   `gorm:"type:jsonb" json:"data,omitempty"` // {shapes, lines} JSONB
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Owner         User                `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Collaborators []BoardCollaborator `gorm:"foreignKey:BoardID" json:"collaborators,omitempty"`
}

func (Board) TableName() string {
	return "boards"
}

// BoardCollaborator 보드 협업자 (editor | viewer)
type BoardCollaborator struct {
	BoardID    string    `gorm:"primaryKey;type:varchar(64)" json:"board_id"`
	UserID     int64     `gorm:"primaryKey" json:"user_id"`
	Permission string    `gorm:"type:varchar(20);not null;default:'viewer'" json:"permission"`
	AddedAt    time.Time `gorm:"autoCreateTime" json:"added_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (BoardCollaborator) TableName() string {
	return "board_collaborators"
}

// ChatMessage 보드 채팅 메시지
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID   string    `gorm:"type:varchar(64);not null;index:idx_chat_board_time" json:"board_id"`
	User      string    `gorm:"type:varchar(100);not null" json:"user"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time `gorm:"not null;index:idx_chat_board_time" json:"timestamp"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Record 전송용 채팅 레코드로 변환
func (m ChatMessage) Record() ChatRecord {
	return ChatRecord{
		User:      m.User,
		Message:   m.Message,
		Timestamp: m.Timestamp,
	}
}
