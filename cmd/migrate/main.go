package main

import (
	"log"
	"os"

	"realtime-chat-be/internal/bootstrap"
	"realtime-chat-be/internal/model"
	"realtime-chat-be/pkg/database"
	"realtime-chat-be/pkg/pgnotify"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting chat schema migration...")

	log.Println("Step 1: Setting up extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
	}

	log.Println("Step 2: Running AutoMigrate...")
	models := []interface{}{
		&model.Profile{},
		&model.Conversation{},
		&model.Participant{},
		&model.Message{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 3. Insert triggers for the postgres change feed source. Harmless when unused.
	log.Println("Step 3: Installing insert notification triggers...")
	for _, stmt := range pgnotify.TriggerSQL(bootstrap.FeedTables...) {
		if err := db.Exec(stmt).Error; err != nil {
			log.Fatalf("Error: Failed to install trigger: %v", err)
		}
	}

	log.Println("✅ Migration completed")
}
