package model

import "time"

// OnlineMember 보드에 접속 중인 연결 정보
type OnlineMember struct {
	ConnectionID string    `json:"connectionId"`
	UserID       int64     `json:"userId"`
	Nickname     string    `json:"nickname"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
}
