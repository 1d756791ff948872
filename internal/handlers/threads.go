package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
)

type ThreadHandler struct {
	log           *logger.Logger
	conversations repos.ConversationRepo
	messages      repos.MessageRepo
	candidates    repos.OrderCandidateRepo
	drafts        repos.ReplyDraftRepo
}

func NewThreadHandler(
	log *logger.Logger,
	conversations repos.ConversationRepo,
	messages repos.MessageRepo,
	candidates repos.OrderCandidateRepo,
	drafts repos.ReplyDraftRepo,
) *ThreadHandler {
	return &ThreadHandler{
		log:           log.With("handler", "ThreadHandler"),
		conversations: conversations,
		messages:      messages,
		candidates:    candidates,
		drafts:        drafts,
	}
}

// GET /api/threads/:id
// Thread detail: conversation row with focus pointer plus funnel state.
func (h *ThreadHandler) GetThread(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	conversation, err := h.conversations.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("GetThread failed", "conversation_id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "load_thread_failed", err)
		return
	}
	if conversation == nil {
		RespondError(c, http.StatusNotFound, "thread_not_found", nil)
		return
	}

	candidate, err := h.candidates.GetByConversation(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("GetThread candidate lookup failed", "conversation_id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "load_thread_failed", err)
		return
	}

	RespondOK(c, gin.H{"thread": conversation, "order_candidate": candidate})
}

// GET /api/threads/:id/messages?limit=N
func (h *ThreadHandler) ListMessages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	messages, err := h.messages.ListByConversation(c.Request.Context(), nil, id, limit)
	if err != nil {
		h.log.Error("ListMessages failed", "conversation_id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "load_messages_failed", err)
		return
	}
	RespondOK(c, gin.H{"messages": messages})
}

// GET /api/threads/:id/drafts
// Reply-draft inspection, newest first.
func (h *ThreadHandler) ListDrafts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	drafts, err := h.drafts.ListByConversation(c.Request.Context(), nil, id, 20)
	if err != nil {
		h.log.Error("ListDrafts failed", "conversation_id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "load_drafts_failed", err)
		return
	}
	RespondOK(c, gin.H{"drafts": drafts})
}
