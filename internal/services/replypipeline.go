package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/himanstore/dmsales-backend/internal/clients/openai"
	redisclient "github.com/himanstore/dmsales-backend/internal/clients/redis"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
	"github.com/himanstore/dmsales-backend/internal/utils"
)

// ErrSchemaViolation marks a serializer output that failed validation
// after the retry. The draft lands in manual-review instead of guessing.
var ErrSchemaViolation = errors.New("serializer output violates schema")

// ReplyDecision is what the sender consumes. Nothing else from the
// pipeline run leaves the draft's trace.
type ReplyDecision struct {
	ShouldReply bool     `json:"should_reply"`
	ReplyText   string   `json:"reply_text"`
	Escalate    bool     `json:"escalate"`
	Tags        []string `json:"tags"`
}

// ReplyPipeline runs the two-stage draft/serialize flow for one
// conversation and persists the outcome as a ReplyDraft.
type ReplyPipeline interface {
	Run(ctx context.Context, conversationID uuid.UUID) (*types.ReplyDraft, error)
}

type replyPipeline struct {
	log           *logger.Logger
	db            *gorm.DB
	conversations repos.ConversationRepo
	messages      repos.MessageRepo
	customers     repos.CustomerProfileRepo
	products      repos.ProductRepo
	links         repos.LinkRepo
	carts         repos.CartItemRepo
	escalations   repos.EscalationRepo
	drafts        repos.ReplyDraftRepo

	preamble PreambleService
	profile  *StoreProfile
	media    MediaService
	ai       openai.Client
	sender   Sender
	locker   redisclient.ConversationLocker

	maxTurns int
}

func NewReplyPipeline(
	log *logger.Logger,
	db *gorm.DB,
	conversations repos.ConversationRepo,
	messages repos.MessageRepo,
	customers repos.CustomerProfileRepo,
	products repos.ProductRepo,
	links repos.LinkRepo,
	carts repos.CartItemRepo,
	escalations repos.EscalationRepo,
	drafts repos.ReplyDraftRepo,
	preamble PreambleService,
	profile *StoreProfile,
	media MediaService,
	ai openai.Client,
	sender Sender,
	locker redisclient.ConversationLocker,
) ReplyPipeline {
	return &replyPipeline{
		log:           log.With("service", "ReplyPipeline"),
		db:            db,
		conversations: conversations,
		messages:      messages,
		customers:     customers,
		products:      products,
		links:         links,
		carts:         carts,
		escalations:   escalations,
		drafts:        drafts,
		preamble:      preamble,
		profile:       profile,
		media:         media,
		ai:            ai,
		sender:        sender,
		locker:        locker,
		maxTurns:      utils.GetEnvAsInt("AGENT_MAX_TURNS", 8, log),
	}
}

// pendingEffects buffers state mutations requested by agent tools. The
// model calls run lock-free; everything here is applied in one short
// locked write after the serializer settles.
type pendingEffects struct {
	cartItems    []*types.CartItem
	escalation   *types.Escalation
	imagesToSend []string
	focusProduct *types.Product
}

type toolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
}

func (p *replyPipeline) Run(ctx context.Context, conversationID uuid.UUID) (*types.ReplyDraft, error) {
	log := p.log.With("conversation_id", conversationID.String())

	conversation, err := p.conversations.GetByID(ctx, nil, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conversation == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}

	history, err := p.messages.ListByConversation(ctx, nil, conversationID, 100)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	customer, err := p.customers.GetByExternalID(ctx, nil, conversation.CustomerExternalID)
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}

	focus, err := p.focusProduct(ctx, conversation)
	if err != nil {
		log.Warn("focus product lookup failed", "error", err.Error())
	}

	system, err := p.buildSystemPrompt(ctx, focus, customer)
	if err != nil {
		return nil, fmt.Errorf("build preamble: %w", err)
	}

	effects := &pendingEffects{focusProduct: focus}
	var toolTrace []toolCallRecord

	handler := func(hctx context.Context, call openai.ToolCall) (string, error) {
		output, hErr := p.handleTool(hctx, conversationID, effects, call)
		rec := toolCallRecord{Name: call.Name, Arguments: call.Arguments, Output: output}
		if hErr != nil {
			rec.Output = "error: " + hErr.Error()
		}
		toolTrace = append(toolTrace, rec)
		return output, hErr
	}

	agentEscalated := false
	result, agentErr := p.ai.ChatWithTools(ctx, system, renderTranscript(history), agentTools(), handler, p.maxTurns)
	if agentErr != nil {
		if !errors.Is(agentErr, openai.ErrToolLoopExceeded) {
			return nil, fmt.Errorf("agent draft: %w", agentErr)
		}
		// Turn ceiling is recoverable: hand the thread to a human.
		log.Warn("agent hit turn ceiling, escalating", "turns", result.Turns)
		agentEscalated = true
		if effects.escalation == nil {
			effects.escalation = &types.Escalation{
				ConversationID: conversationID,
				Reason:         "agent exceeded tool-call turn limit",
			}
		}
	}
	if effects.escalation != nil {
		agentEscalated = true
	}

	decision, serializerTrace, serErr := p.serialize(ctx, result.Text, toolTrace, conversation)
	status := types.DraftStatusDecided
	if serErr != nil {
		if !errors.Is(serErr, ErrSchemaViolation) {
			return nil, fmt.Errorf("serialize decision: %w", serErr)
		}
		status = types.DraftStatusManualReview
		decision = ReplyDecision{}
	}

	// Agent escalation overrides whatever the serializer decided.
	if agentEscalated {
		decision.ShouldReply = false
		decision.Escalate = true
	}

	trace := map[string]any{
		"draft_text":  result.Text,
		"agent_turns": result.Turns,
		"tool_calls":  toolTrace,
		"serializer":  serializerTrace,
	}
	traceJSON, _ := json.Marshal(trace)
	tagsJSON, _ := json.Marshal(decision.Tags)

	draft := &types.ReplyDraft{
		ConversationID: conversationID,
		Status:         status,
		ShouldReply:    decision.ShouldReply,
		ReplyText:      decision.ReplyText,
		Escalate:       decision.Escalate,
		Tags:           datatypes.JSON(tagsJSON),
		Model:          p.ai.Model(),
		Trace:          datatypes.JSON(traceJSON),
	}

	if err := p.commit(ctx, conversationID, effects, draft); err != nil {
		return nil, err
	}

	if status == types.DraftStatusDecided && decision.ShouldReply {
		if err := p.sender.SendText(ctx, conversationID, decision.ReplyText); err != nil {
			log.Warn("reply send failed", "error", err.Error())
		}
		for _, img := range effects.imagesToSend {
			if err := p.sender.SendImage(ctx, conversationID, img); err != nil {
				log.Warn("image send failed", "error", err.Error())
			}
		}
	}

	return draft, nil
}

// commit applies buffered tool effects and persists the draft under the
// conversation lock. The writes share one transaction: either the cart
// items, the escalation and the draft all land, or none do, so a failed
// run can be retried without duplicating effects.
func (p *replyPipeline) commit(ctx context.Context, conversationID uuid.UUID, effects *pendingEffects, draft *types.ReplyDraft) error {
	apply := func() error {
		return p.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
			for _, item := range effects.cartItems {
				if err := p.carts.Add(ctx, txx, item); err != nil {
					return fmt.Errorf("persist cart item: %w", err)
				}
			}
			if effects.escalation != nil {
				if err := p.escalations.Create(ctx, txx, effects.escalation); err != nil {
					return fmt.Errorf("persist escalation: %w", err)
				}
			}
			if err := p.drafts.Create(ctx, txx, draft); err != nil {
				return fmt.Errorf("persist draft: %w", err)
			}
			return nil
		})
	}

	if p.locker == nil {
		return apply()
	}
	release, err := p.locker.Acquire(ctx, conversationID, 30*time.Second, 15*time.Second)
	if err != nil {
		return fmt.Errorf("acquire conversation lock: %w", err)
	}
	defer release()
	return apply()
}

func (p *replyPipeline) focusProduct(ctx context.Context, conversation *types.Conversation) (*types.Product, error) {
	if conversation.LastLinkType == types.LinkTypeNone || conversation.LastLinkID == "" {
		return nil, nil
	}
	ptr := types.Pointer{Type: conversation.LastLinkType, ID: conversation.LastLinkID}

	var productID uuid.UUID
	if ptr.Type == types.LinkTypeStory {
		link, err := p.links.GetStoryLink(ctx, nil, ptr)
		if err != nil {
			return nil, err
		}
		if link != nil {
			productID = link.ProductID
		}
	} else {
		link, err := p.links.GetAdLink(ctx, nil, ptr)
		if err != nil {
			return nil, err
		}
		if link != nil {
			productID = link.ProductID
		}
	}
	if productID == uuid.Nil {
		return nil, nil
	}
	return p.products.GetByID(ctx, nil, productID)
}

func (p *replyPipeline) buildSystemPrompt(ctx context.Context, focus *types.Product, customer *types.CustomerProfile) (string, error) {
	base, err := p.preamble.BuildSystemPreamble(ctx, focus, customer)
	if err != nil {
		return "", err
	}
	sections := []string{base}
	if section := p.profile.PromptSection(); section != "" {
		sections = append(sections, section)
	}
	sections = append(sections,
		"Müsait araçları gerektiğinde kullan. Sipariş netleşince sepete ekle; "+
			"soruyu yanıtlayamıyorsan veya müşteri insan istiyor ise escalate_to_admin çağır.")
	return strings.Join(sections, "\n\n"), nil
}

func renderTranscript(history []*types.Message) string {
	var b strings.Builder
	b.WriteString("Konuşma geçmişi:\n")
	for _, m := range history {
		role := "Müşteri"
		if m.Direction == types.DirectionOut {
			role = "Mağaza"
		}
		fmt.Fprintf(&b, "[%s] %s\n", role, m.Text)
	}
	b.WriteString("\nSon müşteri mesajına cevap taslağı hazırla.")
	return b.String()
}

// -------------------- tools --------------------

func strProp() map[string]any  { return map[string]any{"type": "string"} }
func numProp() map[string]any  { return map[string]any{"type": "number"} }
func intProp() map[string]any  { return map[string]any{"type": "integer"} }
func boolProp() map[string]any { return map[string]any{"type": "boolean"} }

func objSchema(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func agentTools() []openai.ToolDef {
	return []openai.ToolDef{
		{
			Name:        "change_focus_product",
			Description: "Switch the conversation's focus to another catalog product by slug.",
			Parameters:  objSchema(map[string]any{"product_slug": strProp()}),
		},
		{
			Name:        "add_cart_item",
			Description: "Add a product to the customer's cart.",
			Parameters: objSchema(map[string]any{
				"product_slug": strProp(),
				"quantity":     intProp(),
				"size":         strProp(),
				"color":        strProp(),
				"upsell":       boolProp(),
			}),
		},
		{
			Name:        "analyze_customer_image",
			Description: "Describe what a customer-sent image shows, given its URL.",
			Parameters:  objSchema(map[string]any{"image_url": strProp(), "question": strProp()}),
		},
		{
			Name:        "send_product_image_to_customer",
			Description: "Queue the focus product's catalog image for delivery to the customer.",
			Parameters:  objSchema(map[string]any{"product_slug": strProp()}),
		},
		{
			Name:        "set_customer_measurements",
			Description: "Record the customer's height (cm) and weight (kg) and get a size suggestion for the focus product.",
			Parameters:  objSchema(map[string]any{"height_cm": numProp(), "weight_kg": numProp()}),
		},
		{
			Name:        "escalate_to_admin",
			Description: "Hand the conversation to a human operator. Stops automated replies.",
			Parameters:  objSchema(map[string]any{"reason": strProp()}),
		},
	}
}

func (p *replyPipeline) handleTool(ctx context.Context, conversationID uuid.UUID, effects *pendingEffects, call openai.ToolCall) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return "", fmt.Errorf("bad tool arguments: %w", err)
	}
	str := func(key string) string { v, _ := args[key].(string); return strings.TrimSpace(v) }
	num := func(key string) float64 { v, _ := args[key].(float64); return v }

	switch call.Name {
	case "change_focus_product":
		product, err := p.products.GetBySlug(ctx, nil, str("product_slug"))
		if err != nil {
			return "", err
		}
		if product == nil {
			return `{"ok":false,"error":"unknown product"}`, nil
		}
		effects.focusProduct = product
		return fmt.Sprintf(`{"ok":true,"product":%q,"price":%.2f}`, product.Name, product.Price), nil

	case "add_cart_item":
		product, err := p.products.GetBySlug(ctx, nil, str("product_slug"))
		if err != nil {
			return "", err
		}
		if product == nil {
			return `{"ok":false,"error":"unknown product"}`, nil
		}
		quantity := int(num("quantity"))
		if quantity <= 0 {
			quantity = 1
		}
		upsell, _ := args["upsell"].(bool)
		effects.cartItems = append(effects.cartItems, &types.CartItem{
			ConversationID: conversationID,
			ProductID:      product.ID,
			Quantity:       quantity,
			Size:           str("size"),
			Color:          str("color"),
			Upsell:         upsell,
		})
		return `{"ok":true}`, nil

	case "analyze_customer_image":
		imageURL := str("image_url")
		if imageURL == "" {
			return `{"ok":false,"error":"image_url required"}`, nil
		}
		dataURL, err := p.media.FetchAsDataURL(ctx, imageURL)
		if err != nil {
			return "", fmt.Errorf("fetch customer image: %w", err)
		}
		question := str("question")
		if question == "" {
			question = "Describe what this image shows in one short paragraph."
		}
		answer, err := p.ai.GenerateTextWithImages(ctx,
			"You describe customer-submitted shopping images factually and briefly.",
			question, []openai.ImageInput{{ImageURL: dataURL, Detail: "high"}})
		if err != nil {
			return "", fmt.Errorf("analyze customer image: %w", err)
		}
		out, _ := json.Marshal(map[string]any{"ok": true, "description": answer})
		return string(out), nil

	case "send_product_image_to_customer":
		product := effects.focusProduct
		if slug := str("product_slug"); slug != "" {
			p2, err := p.products.GetBySlug(ctx, nil, slug)
			if err != nil {
				return "", err
			}
			if p2 != nil {
				product = p2
			}
		}
		if product == nil || product.ImageURL == "" {
			return `{"ok":false,"error":"no product image available"}`, nil
		}
		effects.imagesToSend = append(effects.imagesToSend, product.ImageURL)
		return `{"ok":true,"queued":true}`, nil

	case "set_customer_measurements":
		size, err := SuggestSize(effects.focusProduct, num("height_cm"), num("weight_kg"))
		if err != nil {
			out, _ := json.Marshal(map[string]any{"ok": false, "error": err.Error()})
			return string(out), nil
		}
		return fmt.Sprintf(`{"ok":true,"suggested_size":%q}`, size), nil

	case "escalate_to_admin":
		reason := str("reason")
		if reason == "" {
			reason = "agent requested escalation"
		}
		effects.escalation = &types.Escalation{
			ConversationID: conversationID,
			Reason:         reason,
		}
		return `{"ok":true,"escalated":true}`, nil

	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

// -------------------- serializer --------------------

var decisionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"should_reply": map[string]any{"type": "boolean"},
		"reply_text":   map[string]any{"type": "string"},
		"escalate":     map[string]any{"type": "boolean"},
		"tags": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"should_reply", "reply_text", "escalate", "tags"},
	"additionalProperties": false,
}

const serializerSystem = `You convert a drafted sales reply plus its tool trace into a final
send decision. Return exactly the requested JSON. should_reply is false
when the draft is empty, off-topic, or the thread was escalated.
reply_text is the final customer-facing Turkish text.`

func (p *replyPipeline) serialize(ctx context.Context, draftText string, toolTrace []toolCallRecord, conversation *types.Conversation) (ReplyDecision, map[string]any, error) {
	toolJSON, _ := json.Marshal(toolTrace)
	user := fmt.Sprintf("Draft:\n%s\n\nTool trace:\n%s\n\nFunnel status: %s",
		draftText, string(toolJSON), conversation.FunnelStatus)

	trace := map[string]any{"input": user}

	decision, err := p.serializeOnce(ctx, user)
	if err == nil {
		trace["output"] = decision
		return decision, trace, nil
	}
	trace["first_error"] = err.Error()
	p.log.Warn("serializer output invalid, retrying once", "error", err.Error())

	hinted := user + "\n\nPrevious attempt was invalid: " + err.Error() +
		"\nReturn strictly valid JSON for the schema."
	decision, err = p.serializeOnce(ctx, hinted)
	if err != nil {
		trace["second_error"] = err.Error()
		return ReplyDecision{}, trace, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	trace["output"] = decision
	return decision, trace, nil
}

func (p *replyPipeline) serializeOnce(ctx context.Context, user string) (ReplyDecision, error) {
	var decision ReplyDecision
	obj, err := p.ai.GenerateJSON(ctx, serializerSystem, user, "reply_decision", decisionSchema)
	if err != nil {
		return decision, err
	}

	shouldReply, ok := obj["should_reply"].(bool)
	if !ok {
		return decision, fmt.Errorf("should_reply missing or not boolean")
	}
	replyText, ok := obj["reply_text"].(string)
	if !ok {
		return decision, fmt.Errorf("reply_text missing or not string")
	}
	escalate, ok := obj["escalate"].(bool)
	if !ok {
		return decision, fmt.Errorf("escalate missing or not boolean")
	}
	rawTags, ok := obj["tags"].([]any)
	if !ok {
		return decision, fmt.Errorf("tags missing or not array")
	}
	tags := make([]string, 0, len(rawTags))
	for _, t := range rawTags {
		s, ok := t.(string)
		if !ok {
			return decision, fmt.Errorf("tags contains non-string entry")
		}
		tags = append(tags, s)
	}
	if shouldReply && strings.TrimSpace(replyText) == "" {
		return decision, fmt.Errorf("should_reply true with empty reply_text")
	}

	decision.ShouldReply = shouldReply
	decision.ReplyText = replyText
	decision.Escalate = escalate
	decision.Tags = tags
	return decision, nil
}
