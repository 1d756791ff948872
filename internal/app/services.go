package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/himanstore/dmsales-backend/internal/jobs/worker"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/services"
	"github.com/himanstore/dmsales-backend/internal/utils"
)

type Services struct {
	Ingest         services.IngestService
	LinkResolver   services.LinkResolver
	Media          services.MediaService
	Matcher        services.Matcher
	Preamble       services.PreambleService
	ReplyPipeline  services.ReplyPipeline
	OrderDetector  services.OrderDetector
	Sender         services.Sender
	DetectorWorker *worker.Worker
}

func wireServices(log *logger.Logger, cfg Config, db *gorm.DB, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")
	var s Services

	profile, err := services.LoadStoreProfile(log)
	if err != nil {
		return s, fmt.Errorf("load store profile: %w", err)
	}

	s.Media = services.NewMediaService(log, c.MediaCache)
	s.Matcher = services.NewVisualMatcher(log, c.OpenAI)
	s.Preamble = services.NewPreambleService(log, r.Pretext)
	s.Sender = services.NewLogSender(log)

	s.LinkResolver = services.NewLinkResolver(log, r.Link, r.Product, s.Media, s.Matcher, c.Locker)
	s.Ingest = services.NewIngestService(log, r.Conversation, r.Message, r.Customer, s.LinkResolver)

	s.ReplyPipeline = services.NewReplyPipeline(
		log,
		db,
		r.Conversation,
		r.Message,
		r.Customer,
		r.Product,
		r.Link,
		r.CartItem,
		r.Escalation,
		r.ReplyDraft,
		s.Preamble,
		profile,
		s.Media,
		c.OpenAI,
		s.Sender,
		c.Locker,
	)

	classifier := services.NewOrderClassifier(log, c.OpenAI)
	s.OrderDetector = services.NewOrderDetector(log, r.OrderCandidate, r.Message, classifier)
	if utils.GetEnvAsBool("DETECTOR_ENABLED", true, log) {
		s.DetectorWorker = worker.NewWorker(log, s.OrderDetector)
	} else {
		log.Warn("Order detector worker disabled via DETECTOR_ENABLED")
	}

	return s, nil
}
