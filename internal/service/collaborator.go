package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"canvas-backend/internal/model"
)

// CollaboratorService 보드 권한 관련 비즈니스 로직
type CollaboratorService struct {
	db *gorm.DB
}

// NewCollaboratorService CollaboratorService 생성
func NewCollaboratorService(db *gorm.DB) *CollaboratorService {
	return &CollaboratorService{db: db}
}

// RoleFor 사용자의 보드 권한 조회. 소유자는 editor, 협업자는 저장된 permission.
func (s *CollaboratorService) RoleFor(ctx context.Context, boardID string, userID int64) (model.Role, error) {
	ownerID, err := s.ownerOf(ctx, boardID)
	if err != nil {
		return "", err
	}
	if ownerID == userID {
		return model.RoleEditor, nil
	}

	var collab model.BoardCollaborator
	err = s.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		First(&collab).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", model.ErrNotCollaborator
	}
	if err != nil {
		return "", fmt.Errorf("load collaborator: %w", err)
	}

	role, ok := model.ParseRole(collab.Permission)
	if !ok {
		// 알 수 없는 값은 읽기 전용으로 취급
		return model.RoleViewer, nil
	}
	return role, nil
}

func (s *CollaboratorService) ownerOf(ctx context.Context, boardID string) (int64, error) {
	var board model.Board
	err := s.db.WithContext(ctx).Select("id", "owner_id").Where("id = ?", boardID).First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, model.ErrBoardNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load board owner: %w", err)
	}
	return board.OwnerID, nil
}
