package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
)

type PretextHandler struct {
	log      *logger.Logger
	pretexts repos.PretextRepo
}

func NewPretextHandler(log *logger.Logger, pretexts repos.PretextRepo) *PretextHandler {
	return &PretextHandler{
		log:      log.With("handler", "PretextHandler"),
		pretexts: pretexts,
	}
}

// GET /api/pretexts
func (h *PretextHandler) ListPretexts(c *gin.Context) {
	items, err := h.pretexts.List(c.Request.Context(), nil)
	if err != nil {
		h.log.Error("ListPretexts failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "load_pretexts_failed", err)
		return
	}
	RespondOK(c, gin.H{"pretexts": items})
}

type createPretextRequest struct {
	Name      string `json:"name" binding:"required"`
	Content   string `json:"content" binding:"required"`
	IsDefault bool   `json:"is_default"`
	Position  int    `json:"position"`
}

// POST /api/pretexts
func (h *PretextHandler) CreatePretext(c *gin.Context) {
	var req createPretextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	pretext := &types.Pretext{
		Name:      req.Name,
		Content:   req.Content,
		IsDefault: req.IsDefault,
		Position:  req.Position,
	}
	if err := h.pretexts.Create(c.Request.Context(), nil, pretext); err != nil {
		h.log.Error("CreatePretext failed", "name", req.Name, "error", err)
		RespondError(c, http.StatusInternalServerError, "create_pretext_failed", err)
		return
	}
	RespondOK(c, gin.H{"pretext": pretext})
}
