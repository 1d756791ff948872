package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/himanstore/dmsales-backend/internal/clients/redis"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
	"github.com/himanstore/dmsales-backend/internal/types"
	"github.com/himanstore/dmsales-backend/internal/utils"
)

// LinkOutcome is the result of one resolver pass over a focus pointer.
type LinkOutcome string

const (
	LinkOutcomeAlreadyLinked LinkOutcome = "already-linked"
	LinkOutcomeLinked        LinkOutcome = "linked"
	LinkOutcomeUnmatched     LinkOutcome = "unmatched"
)

// LinkResolver maps a story/post/ad pointer to a catalog product. Every
// pass re-asserts the cross-table invariant between story links and ad
// links, so a manually corrected story link propagates on the next
// message touching that pointer.
type LinkResolver interface {
	Resolve(ctx context.Context, conversationID uuid.UUID, ptr types.Pointer, mediaURL string) (LinkOutcome, error)
}

type linkResolver struct {
	log      *logger.Logger
	links    repos.LinkRepo
	products repos.ProductRepo
	media    MediaService
	matcher  Matcher
	locker   redisclient.ConversationLocker

	minConfidence float64
}

func NewLinkResolver(
	log *logger.Logger,
	links repos.LinkRepo,
	products repos.ProductRepo,
	media MediaService,
	matcher Matcher,
	locker redisclient.ConversationLocker,
) LinkResolver {
	return &linkResolver{
		log:           log.With("service", "LinkResolver"),
		links:         links,
		products:      products,
		media:         media,
		matcher:       matcher,
		locker:        locker,
		minConfidence: utils.GetEnvAsFloat("LINK_MIN_CONFIDENCE", 0.70, log),
	}
}

func (s *linkResolver) Resolve(ctx context.Context, conversationID uuid.UUID, ptr types.Pointer, mediaURL string) (LinkOutcome, error) {
	if !ptr.Valid() {
		return LinkOutcomeUnmatched, fmt.Errorf("invalid focus pointer")
	}
	log := s.log.With("conversation_id", conversationID.String(), "pointer_type", ptr.Type, "pointer_id", ptr.ID)

	// Step 1: existing story link wins; mirror it into the ad-link table
	// unconditionally so a drifted or hand-edited pair heals here.
	existing, err := s.links.GetStoryLink(ctx, nil, ptr)
	if err != nil {
		return LinkOutcomeUnmatched, fmt.Errorf("load story link: %w", err)
	}
	if existing != nil {
		if err := s.withLock(ctx, conversationID, func() error {
			if err := s.links.EnsureAdLink(ctx, nil, ptr, existing.ProductID, existing.Confidence, existing.AutoLinked); err != nil {
				return fmt.Errorf("sync ad link: %w", err)
			}
			return s.links.UpsertAd(ctx, nil, ptr, "", mediaURL)
		}); err != nil {
			return LinkOutcomeUnmatched, err
		}
		return LinkOutcomeAlreadyLinked, nil
	}

	// Step 2: visual match. Media and model calls run outside any lock.
	if mediaURL == "" {
		log.Info("no media for pointer, skipping match")
		return LinkOutcomeUnmatched, nil
	}

	imageDataURL, err := s.media.FetchAsDataURL(ctx, mediaURL)
	if err != nil {
		log.Warn("media fetch failed", "error", err.Error())
		return LinkOutcomeUnmatched, nil
	}

	candidates, err := s.products.ListCandidates(ctx, nil, 0)
	if err != nil {
		return LinkOutcomeUnmatched, fmt.Errorf("list candidate products: %w", err)
	}
	if len(candidates) == 0 {
		log.Info("empty catalog, nothing to match against")
		return LinkOutcomeUnmatched, nil
	}

	match, err := s.matcher.Match(ctx, imageDataURL, candidates)
	if err != nil {
		log.Warn("visual match failed", "error", err.Error())
		return LinkOutcomeUnmatched, nil
	}
	if match.ProductID == uuid.Nil || match.Confidence < s.minConfidence {
		log.Info("match below threshold",
			"confidence", match.Confidence,
			"threshold", s.minConfidence,
		)
		return LinkOutcomeUnmatched, nil
	}

	if err := s.withLock(ctx, conversationID, func() error {
		return s.links.CreateAutoLinkedSet(ctx, nil, ptr, match.ProductID, match.Confidence, "", mediaURL)
	}); err != nil {
		return LinkOutcomeUnmatched, fmt.Errorf("persist auto link: %w", err)
	}

	log.Info("pointer auto-linked",
		"product_id", match.ProductID.String(),
		"confidence", match.Confidence,
	)
	return LinkOutcomeLinked, nil
}

func (s *linkResolver) withLock(ctx context.Context, conversationID uuid.UUID, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	release, err := s.locker.Acquire(ctx, conversationID, 30*time.Second, 10*time.Second)
	if err != nil {
		return fmt.Errorf("acquire conversation lock: %w", err)
	}
	defer release()
	return fn()
}
