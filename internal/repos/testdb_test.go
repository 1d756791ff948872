package repos

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/types"
)

func newTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps the shared in-memory database alive and
	// serializes writers, which sqlite requires anyway.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&types.Conversation{},
		&types.Message{},
		&types.CustomerProfile{},
		&types.Product{},
		&types.Pretext{},
		&types.StoryLink{},
		&types.AdLink{},
		&types.Ad{},
		&types.OrderCandidate{},
		&types.ReplyDraft{},
		&types.CartItem{},
		&types.Escalation{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return db, log
}
