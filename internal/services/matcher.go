package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/himanstore/dmsales-backend/internal/clients/openai"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/types"
)

// MatchResult is the visual matcher's verdict over one image.
type MatchResult struct {
	ProductID  uuid.UUID
	Confidence float64
	Reason     string
}

// Matcher identifies which catalog product an image shows.
type Matcher interface {
	Match(ctx context.Context, imageDataURL string, candidates []*types.Product) (MatchResult, error)
}

type visualMatcher struct {
	log *logger.Logger
	ai  openai.Client
}

func NewVisualMatcher(log *logger.Logger, ai openai.Client) Matcher {
	return &visualMatcher{
		log: log.With("service", "VisualMatcher"),
		ai:  ai,
	}
}

const matcherSystem = `You identify which product from a catalog appears in an image.
Compare the image against the candidate list. Answer with the single best
candidate and a confidence between 0 and 1. When no candidate plausibly
matches, return an empty product_slug and confidence 0.`

var matchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"product_slug": map[string]any{"type": "string"},
		"confidence":   map[string]any{"type": "number"},
		"reason":       map[string]any{"type": "string"},
	},
	"required":             []string{"product_slug", "confidence", "reason"},
	"additionalProperties": false,
}

func (m *visualMatcher) Match(ctx context.Context, imageDataURL string, candidates []*types.Product) (MatchResult, error) {
	var result MatchResult
	if len(candidates) == 0 {
		return result, nil
	}

	var catalog strings.Builder
	bySlug := make(map[string]*types.Product, len(candidates))
	for _, p := range candidates {
		bySlug[p.Slug] = p
		fmt.Fprintf(&catalog, "- slug=%s name=%q price=%.2f\n", p.Slug, p.Name, p.Price)
	}

	user := "Candidate products:\n" + catalog.String() + "\nWhich product does the image show?"

	obj, err := m.ai.GenerateJSONWithImages(ctx, matcherSystem, user,
		[]openai.ImageInput{{ImageURL: imageDataURL, Detail: "high"}},
		"product_match", matchSchema)
	if err != nil {
		return result, fmt.Errorf("visual match: %w", err)
	}

	slug, _ := obj["product_slug"].(string)
	confidence, _ := obj["confidence"].(float64)
	reason, _ := obj["reason"].(string)

	result.Confidence = confidence
	result.Reason = reason

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return result, nil
	}
	product, ok := bySlug[slug]
	if !ok {
		m.log.Warn("matcher returned unknown slug", "slug", slug)
		result.Confidence = 0
		return result, nil
	}
	result.ProductID = product.ID
	return result, nil
}
