package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/himanstore/dmsales-backend/internal/clients/openai"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
)

type pipelineFixture struct {
	db       *gorm.DB
	pipeline ReplyPipeline
	sender   *fakeSender
	ai       *fakeAI

	conversationID uuid.UUID
	product        *types.Product
}

func newPipelineFixture(t *testing.T, ai *fakeAI) *pipelineFixture {
	t.Helper()
	db, log := newTestDB(t)

	conversations := repos.NewConversationRepo(db, log)
	messages := repos.NewMessageRepo(db, log)
	customers := repos.NewCustomerProfileRepo(db, log)
	products := repos.NewProductRepo(db, log)
	pretexts := repos.NewPretextRepo(db, log)
	links := repos.NewLinkRepo(db, log)
	carts := repos.NewCartItemRepo(db, log)
	escalations := repos.NewEscalationRepo(db, log)
	drafts := repos.NewReplyDraftRepo(db, log)

	ctx := context.Background()
	conversation, err := conversations.GetOrCreate(ctx, nil, "page.1", "cust.1")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	if err := messages.Insert(ctx, nil, &types.Message{
		ConversationID:    conversation.ID,
		Direction:         types.DirectionIn,
		ExternalMessageID: "mid.1",
		Text:              "beden tablosu var mı",
		TimestampMs:       1000,
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	product := seedProduct(t, products, "Kimono", "kimono")

	sender := &fakeSender{}
	preamble := NewPreambleService(log, pretexts)
	pipeline := NewReplyPipeline(
		log, db, conversations, messages, customers, products, links,
		carts, escalations, drafts,
		preamble, &StoreProfile{}, &fakeMedia{}, ai, sender, nil,
	)

	return &pipelineFixture{
		db:             db,
		pipeline:       pipeline,
		sender:         sender,
		ai:             ai,
		conversationID: conversation.ID,
		product:        product,
	}
}

func decidedJSON(shouldReply bool, text string, escalate bool) map[string]any {
	return map[string]any{
		"should_reply": shouldReply,
		"reply_text":   text,
		"escalate":     escalate,
		"tags":         []any{"test"},
	}
}

func TestPipelineDecidedAndSent(t *testing.T) {
	ai := &fakeAI{
		chatResult: openai.ChatResult{Text: "taslak cevap", Turns: 1},
	}
	ai.generateJSON = func(system, user, schemaName string) (map[string]any, error) {
		return decidedJSON(true, "Merhaba efendim, beden tablosunu gönderiyorum.", false), nil
	}
	fx := newPipelineFixture(t, ai)
	ai.t = t

	draft, err := fx.pipeline.Run(context.Background(), fx.conversationID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if draft.Status != types.DraftStatusDecided {
		t.Fatalf("status: want=decided got=%s", draft.Status)
	}
	if !draft.ShouldReply {
		t.Fatalf("should_reply expected true")
	}
	if len(fx.sender.texts) != 1 {
		t.Fatalf("sends: want=1 got=%d", len(fx.sender.texts))
	}

	var stored types.ReplyDraft
	if err := fx.db.First(&stored, "conversation_id = ?", fx.conversationID).Error; err != nil {
		t.Fatalf("draft not persisted: %v", err)
	}
	if len(stored.Trace) == 0 {
		t.Fatalf("trace must be persisted with the draft")
	}
}

func TestPipelineEscalationForcesNoReply(t *testing.T) {
	ai := &fakeAI{
		chatResult: openai.ChatResult{Text: "insan desteği gerekli", Turns: 2},
		chatHook: func(system, user string, handler openai.ToolHandler) {
			_, _ = handler(context.Background(), openai.ToolCall{
				CallID:    "call.1",
				Name:      "escalate_to_admin",
				Arguments: `{"reason":"customer asks for a human"}`,
			})
		},
	}
	// The serializer tries to keep replying; the escalation must win.
	ai.generateJSON = func(system, user, schemaName string) (map[string]any, error) {
		return decidedJSON(true, "yine de cevap vereyim", false), nil
	}
	fx := newPipelineFixture(t, ai)
	ai.t = t

	draft, err := fx.pipeline.Run(context.Background(), fx.conversationID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if draft.ShouldReply {
		t.Fatalf("escalated run must not reply")
	}
	if !draft.Escalate {
		t.Fatalf("escalate flag not set")
	}
	if len(fx.sender.texts) != 0 {
		t.Fatalf("nothing may be sent, got %d sends", len(fx.sender.texts))
	}

	var escalations int64
	fx.db.Model(&types.Escalation{}).Where("conversation_id = ?", fx.conversationID).Count(&escalations)
	if escalations != 1 {
		t.Fatalf("escalation rows: want=1 got=%d", escalations)
	}
}

func TestPipelineSerializerRetryThenManualReview(t *testing.T) {
	calls := 0
	ai := &fakeAI{
		chatResult: openai.ChatResult{Text: "taslak", Turns: 1},
	}
	ai.generateJSON = func(system, user, schemaName string) (map[string]any, error) {
		calls++
		// Both attempts produce a shape violation.
		return map[string]any{"should_reply": "yes"}, nil
	}
	fx := newPipelineFixture(t, ai)
	ai.t = t

	draft, err := fx.pipeline.Run(context.Background(), fx.conversationID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("serializer attempts: want=2 got=%d", calls)
	}
	if draft.Status != types.DraftStatusManualReview {
		t.Fatalf("status: want=manual-review got=%s", draft.Status)
	}
	if draft.ShouldReply {
		t.Fatalf("manual-review drafts never reply")
	}
	if len(fx.sender.texts) != 0 {
		t.Fatalf("nothing may be sent on manual-review")
	}
}

func TestPipelineSerializerRetrySucceeds(t *testing.T) {
	calls := 0
	ai := &fakeAI{
		chatResult: openai.ChatResult{Text: "taslak", Turns: 1},
	}
	ai.generateJSON = func(system, user, schemaName string) (map[string]any, error) {
		calls++
		if calls == 1 {
			return map[string]any{"should_reply": true}, nil
		}
		return decidedJSON(true, "düzeltilmiş cevap", false), nil
	}
	fx := newPipelineFixture(t, ai)
	ai.t = t

	draft, err := fx.pipeline.Run(context.Background(), fx.conversationID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if draft.Status != types.DraftStatusDecided {
		t.Fatalf("status: want=decided got=%s", draft.Status)
	}
	if draft.ReplyText != "düzeltilmiş cevap" {
		t.Fatalf("retry output not used: %q", draft.ReplyText)
	}
}

func TestPipelineTurnCeilingEscalates(t *testing.T) {
	ai := &fakeAI{
		chatResult: openai.ChatResult{Turns: 8},
		chatErr:    openai.ErrToolLoopExceeded,
	}
	ai.generateJSON = func(system, user, schemaName string) (map[string]any, error) {
		return decidedJSON(false, "", false), nil
	}
	fx := newPipelineFixture(t, ai)
	ai.t = t

	draft, err := fx.pipeline.Run(context.Background(), fx.conversationID)
	if err != nil {
		t.Fatalf("ceiling breach must be recoverable: %v", err)
	}
	if !draft.Escalate || draft.ShouldReply {
		t.Fatalf("ceiling breach must escalate without replying: %+v", draft)
	}

	var escalations int64
	fx.db.Model(&types.Escalation{}).Where("conversation_id = ?", fx.conversationID).Count(&escalations)
	if escalations != 1 {
		t.Fatalf("escalation rows: want=1 got=%d", escalations)
	}
}

func TestPipelineCommitRollsBackTogether(t *testing.T) {
	ai := &fakeAI{
		chatResult: openai.ChatResult{Text: "sepete ekledim", Turns: 2},
	}
	ai.chatHook = func(system, user string, handler openai.ToolHandler) {
		if _, err := handler(context.Background(), openai.ToolCall{
			CallID:    "call.1",
			Name:      "add_cart_item",
			Arguments: `{"product_slug":"kimono","quantity":1,"size":"L","color":"bej","upsell":false}`,
		}); err != nil {
			panic(err)
		}
		if _, err := handler(context.Background(), openai.ToolCall{
			CallID:    "call.2",
			Name:      "escalate_to_admin",
			Arguments: `{"reason":"stok teyidi lazım"}`,
		}); err != nil {
			panic(err)
		}
	}
	ai.generateJSON = func(system, user, schemaName string) (map[string]any, error) {
		return decidedJSON(false, "", true), nil
	}
	fx := newPipelineFixture(t, ai)
	ai.t = t

	// Break the last write of the commit sequence.
	if err := fx.db.Migrator().DropTable(&types.ReplyDraft{}); err != nil {
		t.Fatalf("drop draft table: %v", err)
	}

	if _, err := fx.pipeline.Run(context.Background(), fx.conversationID); err == nil {
		t.Fatalf("run must fail when the draft cannot be persisted")
	}

	var carts, escalations int64
	fx.db.Model(&types.CartItem{}).Where("conversation_id = ?", fx.conversationID).Count(&carts)
	fx.db.Model(&types.Escalation{}).Where("conversation_id = ?", fx.conversationID).Count(&escalations)
	if carts != 0 || escalations != 0 {
		t.Fatalf("failed commit must leave no partial effects: carts=%d escalations=%d", carts, escalations)
	}
	if len(fx.sender.texts) != 0 {
		t.Fatalf("nothing may be sent when the commit fails")
	}
}

func TestPipelineCartToolPersists(t *testing.T) {
	ai := &fakeAI{
		chatResult: openai.ChatResult{Text: "sepete ekledim", Turns: 2},
	}
	ai.chatHook = func(system, user string, handler openai.ToolHandler) {
		out, err := handler(context.Background(), openai.ToolCall{
			CallID:    "call.1",
			Name:      "add_cart_item",
			Arguments: `{"product_slug":"kimono","quantity":2,"size":"M","color":"siyah","upsell":false}`,
		})
		if err != nil {
			panic(err)
		}
		if out != `{"ok":true}` {
			panic("unexpected tool output: " + out)
		}
	}
	ai.generateJSON = func(system, user, schemaName string) (map[string]any, error) {
		return decidedJSON(true, "Sepetinize 2 adet ekledim.", false), nil
	}
	fx := newPipelineFixture(t, ai)
	ai.t = t

	if _, err := fx.pipeline.Run(context.Background(), fx.conversationID); err != nil {
		t.Fatalf("run: %v", err)
	}

	var items []types.CartItem
	if err := fx.db.Find(&items, "conversation_id = ?", fx.conversationID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("cart rows: want=1 got=%d", len(items))
	}
	if items[0].Quantity != 2 || items[0].Size != "M" || items[0].ProductID != fx.product.ID {
		t.Fatalf("cart row wrong: %+v", items[0])
	}
}
