package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"canvas-backend/internal/database"
	"canvas-backend/internal/model"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	// Database connection
	db, err := gorm.Open(postgres.Open(database.LoadConfig().DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println()

	// 테이블 존재 여부
	for _, table := range []string{"users", "boards", "board_collaborators", "chat_messages"} {
		fmt.Printf("📊 Table %-20s exists: %v\n", table, db.Migrator().HasTable(table))
	}
	fmt.Println()

	if !db.Migrator().HasTable(&model.Board{}) {
		fmt.Println("❌ boards table does NOT exist!")
		fmt.Println("⚠️  Start the server once (or run migrations) to create it")
		return
	}

	// 보드 통계
	type BoardStats struct {
		Total   int64
		Empty   int64
		HasData int64
	}
	var stats BoardStats
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN data IS NULL THEN 1 END) as empty,
			COUNT(CASE WHEN data IS NOT NULL THEN 1 END) as has_data
		FROM boards
	`
	if err := db.Raw(query).Scan(&stats).Error; err != nil {
		log.Fatal("Failed to get board statistics:", err)
	}

	fmt.Println("📈 Board Statistics:")
	fmt.Printf("  - Total boards: %d\n", stats.Total)
	fmt.Printf("  - With data: %d\n", stats.HasData)
	fmt.Printf("  - Empty: %d\n", stats.Empty)
	fmt.Println()

	// 권한 분포 (editor | viewer 이외 값은 fix_board_data로 정리)
	type PermissionCount struct {
		Permission string
		Count      int64
	}
	var perms []PermissionCount
	if err := db.Model(&model.BoardCollaborator{}).
		Select("permission, COUNT(*) as count").
		Group("permission").
		Scan(&perms).Error; err != nil {
		log.Fatal("Failed to get permission statistics:", err)
	}

	fmt.Println("👥 Collaborator Permissions:")
	for _, p := range perms {
		marker := ""
		if _, ok := model.ParseRole(p.Permission); !ok {
			marker = " ⚠️ unknown"
		}
		fmt.Printf("  - %s: %d%s\n", p.Permission, p.Count, marker)
	}
	fmt.Println()

	// 최근 보드
	var boards []model.Board
	if err := db.Order("updated_at DESC").Limit(10).Find(&boards).Error; err != nil {
		log.Fatal("Failed to get recent boards:", err)
	}

	fmt.Println("🎨 Recent Boards (last 10):")
	for _, b := range boards {
		doc, err := model.ParseDocument(b.Data)
		if err != nil {
			fmt.Printf("  - ID: %s, Title: %s, Owner: %d, CORRUPT: %v\n", b.ID, b.Title, b.OwnerID, err)
			continue
		}

		var chatCount int64
		db.Model(&model.ChatMessage{}).Where("board_id = ?", b.ID).Count(&chatCount)

		missing := 0
		for _, e := range append(doc.Shapes, doc.Lines...) {
			if e.ID == "" {
				missing++
			}
		}
		fmt.Printf("  - ID: %s, Title: %s, Owner: %d, Shapes: %d, Lines: %d, Missing IDs: %d, Chat: %d\n",
			b.ID, b.Title, b.OwnerID, len(doc.Shapes), len(doc.Lines), missing, chatCount)
	}
}
