package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"canvas-backend/internal/cache"
	"canvas-backend/internal/database"
	"canvas-backend/internal/model"
	"canvas-backend/internal/repository"
)

// 기존 보드 데이터 보정:
//  1. id 없는 shape/line에 UUID 부여
//  2. board_collaborators.permission 값을 editor | viewer로 정규화
func main() {
	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	// Connect to database
	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var documentCache repository.DocumentCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient, err := cache.NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0, 0)
		if err != nil {
			log.Printf("⚠️ Redis unavailable, cached documents will not be refreshed: %v", err)
		} else {
			defer redisClient.Close()
			documentCache = redisClient
		}
	}

	ctx := context.Background()
	boards := repository.NewBoardRepository(db, documentCache)

	log.Println("Database connected. Starting board data fix...")

	fixed, err := fixElementIDs(ctx, db, boards)
	if err != nil {
		log.Fatalf("Failed to fix element ids: %v", err)
	}
	log.Printf("Element ids backfilled on %d boards.\n", fixed)

	updated, err := fixPermissions(db)
	if err != nil {
		log.Fatalf("Failed to fix collaborator permissions: %v", err)
	}
	log.Printf("Collaborator permissions normalized: %d rows.\n", updated)
}

func fixElementIDs(ctx context.Context, db *gorm.DB, boards *repository.BoardRepository) (int, error) {
	var ids []string
	if err := db.Model(&model.Board{}).Where("data IS NOT NULL").Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	fixed := 0
	for _, id := range ids {
		board, err := boards.Get(ctx, id)
		if err != nil {
			return fixed, err
		}
		doc, err := model.ParseDocument(board.Data)
		if err != nil {
			log.Printf("Skipping board %s: %v\n", id, err)
			continue
		}

		changed := false
		for i := range doc.Shapes {
			changed = doc.Shapes[i].EnsureID() || changed
		}
		for i := range doc.Lines {
			changed = doc.Lines[i].EnsureID() || changed
		}
		if !changed {
			continue
		}

		if err := boards.Save(ctx, id, doc); err != nil {
			return fixed, err
		}
		log.Printf("Backfilled element ids on board %s\n", id)
		fixed++
	}
	return fixed, nil
}

func fixPermissions(db *gorm.DB) (int, error) {
	updated := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		var collaborators []model.BoardCollaborator
		if err := tx.Find(&collaborators).Error; err != nil {
			return err
		}

		for _, c := range collaborators {
			role, ok := model.ParseRole(c.Permission)
			if !ok {
				log.Printf("Unknown permission %q on board %s user %d, downgrading to viewer\n", c.Permission, c.BoardID, c.UserID)
				role = model.RoleViewer
			}
			if c.Permission == role.String() {
				continue
			}
			if err := tx.Model(&model.BoardCollaborator{}).
				Where("board_id = ? AND user_id = ?", c.BoardID, c.UserID).
				Update("permission", role.String()).Error; err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	return updated, err
}
