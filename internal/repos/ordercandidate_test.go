package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/himanstore/dmsales-backend/internal/types"
)

func TestUpsertGuardedNeverDowngradesTerminal(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewOrderCandidateRepo(db, log)
	ctx := context.Background()

	conversationID := uuid.New()
	placedAt := time.Now().UTC()

	if err := repo.UpsertGuarded(ctx, nil, &types.OrderCandidate{
		ConversationID: conversationID,
		Status:         types.OrderStatusPlaced,
		StatusReason:   "customer confirmed the order",
		PlacedAt:       &placedAt,
	}); err != nil {
		t.Fatalf("seed placed: %v", err)
	}

	// A stale re-scan concludes very-interested; it must bounce off.
	if err := repo.UpsertGuarded(ctx, nil, &types.OrderCandidate{
		ConversationID: conversationID,
		Status:         types.OrderStatusVeryInterested,
		StatusReason:   "stale scan",
	}); err != nil {
		t.Fatalf("stale upsert: %v", err)
	}

	got, err := repo.GetByConversation(ctx, nil, conversationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.OrderStatusPlaced {
		t.Fatalf("terminal status downgraded to %q", got.Status)
	}
	if got.PlacedAt == nil {
		t.Fatalf("placed_at lost")
	}
}

func TestUpsertGuardedUpgradesNonTerminal(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewOrderCandidateRepo(db, log)
	ctx := context.Background()

	conversationID := uuid.New()
	if err := repo.UpsertGuarded(ctx, nil, &types.OrderCandidate{
		ConversationID: conversationID,
		Status:         types.OrderStatusInterested,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.UpsertGuarded(ctx, nil, &types.OrderCandidate{
		ConversationID: conversationID,
		Status:         types.OrderStatusVeryInterested,
		StatusReason:   "asked for shipping cost",
	}); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	got, err := repo.GetByConversation(ctx, nil, conversationID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.OrderStatusVeryInterested {
		t.Fatalf("status: want=very-interested got=%q", got.Status)
	}

	var count int64
	db.Model(&types.OrderCandidate{}).Where("conversation_id = ?", conversationID).Count(&count)
	if count != 1 {
		t.Fatalf("candidate rows: want=1 got=%d", count)
	}
}

func TestSelectRescannable(t *testing.T) {
	db, log := newTestDB(t)
	candidates := NewOrderCandidateRepo(db, log)
	conversations := NewConversationRepo(db, log)
	messages := NewMessageRepo(db, log)
	ctx := context.Background()

	window := time.Hour
	now := time.Now().UTC()
	from, to := now.Add(-window), now.Add(time.Minute)

	seed := func(customer string) uuid.UUID {
		conv, err := conversations.GetOrCreate(ctx, nil, "page.1", customer)
		if err != nil {
			t.Fatalf("seed conversation: %v", err)
		}
		if err := messages.Insert(ctx, nil, &types.Message{
			ConversationID:    conv.ID,
			Direction:         types.DirectionIn,
			ExternalMessageID: "mid." + customer,
			TimestampMs:       now.UnixMilli(),
		}); err != nil {
			t.Fatalf("seed message: %v", err)
		}
		return conv.ID
	}

	noCandidate := seed("fresh")

	staleNonTerminal := seed("stale-scan")
	if err := db.Create(&types.OrderCandidate{
		ConversationID: staleNonTerminal,
		Status:         types.OrderStatusInterested,
		CreatedAt:      now.Add(-2 * time.Hour),
		UpdatedAt:      now.Add(-2 * time.Hour),
	}).Error; err != nil {
		t.Fatalf("seed stale candidate: %v", err)
	}

	freshNonTerminal := seed("fresh-scan")
	if err := db.Create(&types.OrderCandidate{
		ConversationID: freshNonTerminal,
		Status:         types.OrderStatusInterested,
		CreatedAt:      now.Add(time.Minute),
		UpdatedAt:      now.Add(time.Minute),
	}).Error; err != nil {
		t.Fatalf("seed fresh candidate: %v", err)
	}

	terminal := seed("placed")
	if err := db.Create(&types.OrderCandidate{
		ConversationID: terminal,
		Status:         types.OrderStatusPlaced,
		CreatedAt:      now.Add(-2 * time.Hour),
		UpdatedAt:      now.Add(-2 * time.Hour),
	}).Error; err != nil {
		t.Fatalf("seed terminal candidate: %v", err)
	}

	ids, err := candidates.SelectRescannable(ctx, nil, from, to)
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	selected := map[uuid.UUID]bool{}
	for _, id := range ids {
		selected[id] = true
	}

	cases := []struct {
		name string
		id   uuid.UUID
		want bool
	}{
		{"no candidate yet", noCandidate, true},
		{"non-terminal with newer messages", staleNonTerminal, true},
		{"non-terminal already scanned after last message", freshNonTerminal, false},
		{"terminal never reselected", terminal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if selected[tc.id] != tc.want {
				t.Fatalf("selected=%v want=%v", selected[tc.id], tc.want)
			}
		})
	}
}
