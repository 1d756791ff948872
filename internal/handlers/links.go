package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
)

type LinkHandler struct {
	log      *logger.Logger
	links    repos.LinkRepo
	products repos.ProductRepo
}

func NewLinkHandler(log *logger.Logger, links repos.LinkRepo, products repos.ProductRepo) *LinkHandler {
	return &LinkHandler{
		log:      log.With("handler", "LinkHandler"),
		links:    links,
		products: products,
	}
}

// GET /api/links
// Both link tables, the shape the admin UI renders side by side.
func (h *LinkHandler) ListLinks(c *gin.Context) {
	storyLinks, err := h.links.ListStoryLinks(c.Request.Context(), nil, 200)
	if err != nil {
		h.log.Error("ListLinks story query failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "load_links_failed", err)
		return
	}
	adLinks, err := h.links.ListAdLinks(c.Request.Context(), nil, 200)
	if err != nil {
		h.log.Error("ListLinks ad query failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "load_links_failed", err)
		return
	}
	RespondOK(c, gin.H{"story_links": storyLinks, "ad_links": adLinks})
}

type setLinkRequest struct {
	PointerType string    `json:"pointer_type" binding:"required"`
	PointerID   string    `json:"pointer_id" binding:"required"`
	ProductID   uuid.UUID `json:"product_id" binding:"required"`
}

// PUT /api/links
// Manual override: points both tables at the chosen product with
// auto_linked=false so the resolver treats it as authoritative.
func (h *LinkHandler) SetLink(c *gin.Context) {
	var req setLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ptr := types.Pointer{Type: req.PointerType, ID: req.PointerID}
	if !ptr.Valid() {
		RespondError(c, http.StatusBadRequest, "invalid_pointer", nil)
		return
	}

	product, err := h.products.GetByID(c.Request.Context(), nil, req.ProductID)
	if err != nil {
		h.log.Error("SetLink product lookup failed", "product_id", req.ProductID, "error", err)
		RespondError(c, http.StatusInternalServerError, "set_link_failed", err)
		return
	}
	if product == nil {
		RespondError(c, http.StatusNotFound, "product_not_found", nil)
		return
	}

	if err := h.links.SetManualLink(c.Request.Context(), nil, ptr, req.ProductID); err != nil {
		h.log.Error("SetLink failed",
			"pointer_type", ptr.Type,
			"pointer_id", ptr.ID,
			"error", err,
		)
		RespondError(c, http.StatusInternalServerError, "set_link_failed", err)
		return
	}
	RespondOK(c, gin.H{"linked": true})
}
