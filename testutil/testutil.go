package testutil

import (
	"testing"

	"ctf-scoreboard-system/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates a fresh in-memory database with the full schema.
// The pool is pinned to a single connection: that keeps the in-memory
// store shared between goroutines and serializes concurrent access the
// way Postgres row locks do in production.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get raw connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.AchievementUnlock{},
		&models.LeaderboardSnapshot{},
		&models.BadgeType{},
		&models.UserBadge{},
	); err != nil {
		t.Fatalf("Failed to migrate test schema: %v", err)
	}

	return db
}

// CreateTestUser inserts a user row with an unusable credential hash.
func CreateTestUser(t *testing.T, db *gorm.DB, username string) {
	t.Helper()

	user := models.User{Username: username, PasswordHash: "!test"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user %s: %v", username, err)
	}
}

// GetTestUser reloads a user row or fails the test.
func GetTestUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()

	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		t.Fatalf("Failed to load test user %s: %v", username, err)
	}
	return user
}
