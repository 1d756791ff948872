package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/himanstore/dmsales-backend/internal/clients/openai"
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

// fakeAI scripts the model calls a test expects. Unscripted methods fail
// loudly so a test never silently exercises the wrong path.
type fakeAI struct {
	t *testing.T

	generateJSON func(system, user, schemaName string) (map[string]any, error)
	chatResult   openai.ChatResult
	chatErr      error
	chatHook     func(system, user string, handler openai.ToolHandler)
	textWithImgs string
}

func (f *fakeAI) Model() string { return "fake-model" }

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	if f.generateJSON == nil {
		f.t.Fatalf("unexpected GenerateJSON call (schema %s)", schemaName)
	}
	return f.generateJSON(system, user, schemaName)
}

func (f *fakeAI) GenerateJSONWithImages(ctx context.Context, system, user string, images []openai.ImageInput, schemaName string, schema map[string]any) (map[string]any, error) {
	if f.generateJSON == nil {
		f.t.Fatalf("unexpected GenerateJSONWithImages call (schema %s)", schemaName)
	}
	return f.generateJSON(system, user, schemaName)
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	return f.textWithImgs, nil
}

func (f *fakeAI) GenerateTextWithImages(ctx context.Context, system, user string, images []openai.ImageInput) (string, error) {
	return f.textWithImgs, nil
}

func (f *fakeAI) ChatWithTools(ctx context.Context, system, user string, tools []openai.ToolDef, handler openai.ToolHandler, maxTurns int) (openai.ChatResult, error) {
	if f.chatHook != nil {
		f.chatHook(system, user, handler)
	}
	return f.chatResult, f.chatErr
}

// fakeMedia serves canned bytes for any URL.
type fakeMedia struct {
	dataURL string
	err     error
}

func (f *fakeMedia) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("img"), "image/jpeg", nil
}

func (f *fakeMedia) FetchAsDataURL(ctx context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.dataURL != "" {
		return f.dataURL, nil
	}
	return "data:image/jpeg;base64,aW1n", nil
}

// fakeMatcher returns a fixed verdict.
type fakeMatcher struct {
	result MatchResult
	err    error
}

func (f *fakeMatcher) Match(ctx context.Context, imageDataURL string, candidates []*types.Product) (MatchResult, error) {
	return f.result, f.err
}

// fakeSender records sends.
type fakeSender struct {
	texts  []string
	images []string
}

func (f *fakeSender) SendText(ctx context.Context, conversationID uuid.UUID, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) SendImage(ctx context.Context, conversationID uuid.UUID, imageURL string) error {
	f.images = append(f.images, imageURL)
	return nil
}
