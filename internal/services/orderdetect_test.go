package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
)

// fakeClassifier returns a scripted verdict per conversation. Scans run
// concurrently, so bookkeeping is locked.
type fakeClassifier struct {
	mu       sync.Mutex
	verdicts map[uuid.UUID]Classification
	errs     map[uuid.UUID]error
	scanned  []uuid.UUID
}

func (f *fakeClassifier) Classify(ctx context.Context, history []*types.Message) (Classification, error) {
	conversationID := history[0].ConversationID
	f.mu.Lock()
	f.scanned = append(f.scanned, conversationID)
	f.mu.Unlock()

	if err := f.errs[conversationID]; err != nil {
		return Classification{}, err
	}
	return f.verdicts[conversationID], nil
}

func (f *fakeClassifier) scanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scanned)
}

type detectorFixture struct {
	db         *gorm.DB
	log        *logger.Logger
	candidates repos.OrderCandidateRepo
	messages   repos.MessageRepo
	detector   OrderDetector
	classifier *fakeClassifier
}

func newDetectorFixture(t *testing.T) *detectorFixture {
	t.Helper()
	db, log := newTestDB(t)
	candidates := repos.NewOrderCandidateRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	classifier := &fakeClassifier{
		verdicts: map[uuid.UUID]Classification{},
		errs:     map[uuid.UUID]error{},
	}
	return &detectorFixture{
		db:         db,
		log:        log,
		candidates: candidates,
		messages:   messages,
		detector:   NewOrderDetector(log, candidates, messages, classifier),
		classifier: classifier,
	}
}

// seedThread creates a conversation with alternating messages and returns
// the conversation id plus the inserted messages in order.
func (fx *detectorFixture) seedThread(t *testing.T, externalID string, texts ...string) (uuid.UUID, []*types.Message) {
	t.Helper()
	ctx := context.Background()
	conversations := repos.NewConversationRepo(fx.db, fx.log)
	conversation, err := conversations.GetOrCreate(ctx, nil, "page.1", externalID)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	inserted := make([]*types.Message, 0, len(texts))
	for i, text := range texts {
		direction := types.DirectionIn
		if i%2 == 1 {
			direction = types.DirectionOut
		}
		m := &types.Message{
			ConversationID:    conversation.ID,
			Direction:         direction,
			ExternalMessageID: externalID + "." + text,
			Text:              text,
			TimestampMs:       int64(1000 * (i + 1)),
		}
		if err := fx.messages.Insert(ctx, nil, m); err != nil {
			t.Fatalf("seed message %d: %v", i, err)
		}
		inserted = append(inserted, m)
	}
	return conversation.ID, inserted
}

func scanWindow() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.Add(-time.Hour), now.Add(time.Hour)
}

func TestDetectUpsertsCandidate(t *testing.T) {
	fx := newDetectorFixture(t)
	id, _ := fx.seedThread(t, "cust.a", "fiyat nedir", "450 TL", "kargo dahil mi")
	fx.classifier.verdicts[id] = Classification{
		Status: types.OrderStatusVeryInterested,
		Reason: "negotiating shipping",
	}

	from, to := scanWindow()
	scanned, err := fx.detector.Detect(context.Background(), from, to)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(scanned) != 1 {
		t.Fatalf("scanned: want=1 got=%d", len(scanned))
	}

	var candidate types.OrderCandidate
	if err := fx.db.First(&candidate, "conversation_id = ?", id).Error; err != nil {
		t.Fatalf("candidate not written: %v", err)
	}
	if candidate.Status != types.OrderStatusVeryInterested {
		t.Fatalf("status: want=very-interested got=%s", candidate.Status)
	}
	if candidate.PlacedAt != nil {
		t.Fatalf("placed_at must stay nil for non-placed status")
	}
}

func TestDetectSkipsUnknownVerdict(t *testing.T) {
	fx := newDetectorFixture(t)
	id, _ := fx.seedThread(t, "cust.b", "merhaba")
	fx.classifier.verdicts[id] = Classification{Status: types.OrderStatusUnknown}

	from, to := scanWindow()
	if _, err := fx.detector.Detect(context.Background(), from, to); err != nil {
		t.Fatalf("detect: %v", err)
	}

	var count int64
	fx.db.Model(&types.OrderCandidate{}).Where("conversation_id = ?", id).Count(&count)
	if count != 0 {
		t.Fatalf("unknown verdict must not write a candidate, got %d rows", count)
	}
}

func TestDetectNeverScansTerminalConversations(t *testing.T) {
	fx := newDetectorFixture(t)
	id, _ := fx.seedThread(t, "cust.c", "siparişi verdim")
	if err := fx.candidates.UpsertGuarded(context.Background(), nil, &types.OrderCandidate{
		ConversationID: id,
		Status:         types.OrderStatusPlaced,
		StatusReason:   "confirmed",
	}); err != nil {
		t.Fatalf("seed candidate: %v", err)
	}

	from, to := scanWindow()
	scanned, err := fx.detector.Detect(context.Background(), from, to)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(scanned) != 0 {
		t.Fatalf("terminal conversation selected for rescan: %v", scanned)
	}
	if fx.classifier.scanCount() != 0 {
		t.Fatalf("classifier must not run on terminal conversations")
	}
}

func TestDetectPlacedAtFromTriggeringMessage(t *testing.T) {
	fx := newDetectorFixture(t)
	id, msgs := fx.seedThread(t, "cust.d",
		"bu elbise kaç para", // in, ts 1000
		"650 TL efendim",     // out, ts 2000
		"tamam sipariş ver",  // in, ts 3000 <- triggering
		"adresinizi rica ederim", // out, ts 4000
	)
	fx.classifier.verdicts[id] = Classification{
		Status:          types.OrderStatusPlaced,
		Reason:          "customer confirmed",
		PlacedMessageID: msgs[2].ID,
	}

	from, to := scanWindow()
	if _, err := fx.detector.Detect(context.Background(), from, to); err != nil {
		t.Fatalf("detect: %v", err)
	}

	var candidate types.OrderCandidate
	if err := fx.db.First(&candidate, "conversation_id = ?", id).Error; err != nil {
		t.Fatalf("candidate not written: %v", err)
	}
	if candidate.PlacedAt == nil {
		t.Fatalf("placed_at not set")
	}
	want := time.UnixMilli(3000).UTC()
	if !candidate.PlacedAt.Equal(want) {
		t.Fatalf("placed_at: want=%v got=%v", want, candidate.PlacedAt)
	}
}

func TestDetectOneFailureDoesNotAbortPass(t *testing.T) {
	fx := newDetectorFixture(t)
	badID, _ := fx.seedThread(t, "cust.bad", "???")
	goodID, _ := fx.seedThread(t, "cust.good", "nasıl sipariş verebilirim")
	fx.classifier.errs[badID] = errors.New("model unavailable")
	fx.classifier.verdicts[goodID] = Classification{
		Status: types.OrderStatusVeryInterested,
		Reason: "asked how to order",
	}

	from, to := scanWindow()
	if _, err := fx.detector.Detect(context.Background(), from, to); err != nil {
		t.Fatalf("one failed scan must not fail the pass: %v", err)
	}

	var count int64
	fx.db.Model(&types.OrderCandidate{}).Where("conversation_id = ?", goodID).Count(&count)
	if count != 1 {
		t.Fatalf("healthy conversation not classified, rows=%d", count)
	}
	fx.db.Model(&types.OrderCandidate{}).Where("conversation_id = ?", badID).Count(&count)
	if count != 0 {
		t.Fatalf("failed scan must not write a candidate, rows=%d", count)
	}
}

func TestPlacedAtFallsBackToLastInbound(t *testing.T) {
	history := []*types.Message{
		{ID: uuid.New(), Direction: types.DirectionIn, TimestampMs: 1000},
		{ID: uuid.New(), Direction: types.DirectionOut, TimestampMs: 2000},
		{ID: uuid.New(), Direction: types.DirectionIn, TimestampMs: 3000},
		{ID: uuid.New(), Direction: types.DirectionOut, TimestampMs: 4000},
	}

	at := placedAtFrom(history, uuid.Nil)
	if want := time.UnixMilli(3000).UTC(); !at.Equal(want) {
		t.Fatalf("fallback: want=%v got=%v", want, at)
	}

	at = placedAtFrom(history, history[0].ID)
	if want := time.UnixMilli(1000).UTC(); !at.Equal(want) {
		t.Fatalf("triggering message: want=%v got=%v", want, at)
	}
}
