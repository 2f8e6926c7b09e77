package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"canvas-backend/internal/model"
)

// DocumentCache 보드 문서 캐시 (Redis). nil이면 DB만 사용.
type DocumentCache interface {
	GetDocument(ctx context.Context, boardID string) (model.Document, bool, error)
	SetDocument(ctx context.Context, boardID string, doc model.Document) error
	DeleteDocument(ctx context.Context, boardID string) error
}

// BoardRepository 보드 문서 저장소 (boards.data JSONB)
type BoardRepository struct {
	db    *gorm.DB
	cache DocumentCache
}

// NewBoardRepository BoardRepository 생성
func NewBoardRepository(db *gorm.DB, cache DocumentCache) *BoardRepository {
	return &BoardRepository{db: db, cache: cache}
}

// Get 보드 메타데이터와 문서 조회
func (r *BoardRepository) Get(ctx context.Context, boardID string) (*model.Board, error) {
	var board model.Board
	err := r.db.WithContext(ctx).Where("id = ?", boardID).First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", boardID, err)
	}
	return &board, nil
}

// Fetch 보드 문서 조회 (캐시 우선)
func (r *BoardRepository) Fetch(ctx context.Context, boardID string) (model.Document, error) {
	if r.cache != nil {
		doc, ok, err := r.cache.GetDocument(ctx, boardID)
		if err != nil {
			log.Printf("[BoardRepo] Cache read failed for %s: %v", boardID, err)
		} else if ok {
			return doc, nil
		}
	}

	var board model.Board
	err := r.db.WithContext(ctx).Select("id", "data").Where("id = ?", boardID).First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Document{}, model.ErrBoardNotFound
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("load board %s: %w", boardID, err)
	}

	doc, err := model.ParseDocument(board.Data)
	if err != nil {
		return model.Document{}, fmt.Errorf("board %s: %w", boardID, err)
	}

	if r.cache != nil {
		if err := r.cache.SetDocument(ctx, boardID, doc); err != nil {
			log.Printf("[BoardRepo] Cache fill failed for %s: %v", boardID, err)
		}
	}
	return doc, nil
}

// Save 보드 문서 저장 (캐시도 갱신)
func (r *BoardRepository) Save(ctx context.Context, boardID string, doc model.Document) error {
	if doc.Shapes == nil {
		doc.Shapes = []model.Element{}
	}
	if doc.Lines == nil {
		doc.Lines = []model.Element{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode board %s: %w", boardID, err)
	}

	result := r.db.WithContext(ctx).
		Model(&model.Board{}).
		Where("id = ?", boardID).
		Update("data", string(data))
	if result.Error != nil {
		return fmt.Errorf("save board %s: %w", boardID, result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrBoardNotFound
	}

	if r.cache != nil {
		if err := r.cache.SetDocument(ctx, boardID, doc); err != nil {
			// 오래된 캐시가 남지 않도록 지운다
			log.Printf("[BoardRepo] Cache write failed for %s: %v", boardID, err)
			r.cache.DeleteDocument(ctx, boardID)
		}
	}
	return nil
}
