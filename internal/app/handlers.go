package app

import (
	"github.com/gin-gonic/gin"

	"github.com/himanstore/dmsales-backend/internal/handlers"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/server"
)

type Handlers struct {
	Webhook  *handlers.WebhookHandler
	Thread   *handlers.ThreadHandler
	Link     *handlers.LinkHandler
	Pretext  *handlers.PretextHandler
	Pipeline *handlers.PipelineHandler
}

func wireHandlers(log *logger.Logger, r Repos, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Webhook:  handlers.NewWebhookHandler(log, s.Ingest),
		Thread:   handlers.NewThreadHandler(log, r.Conversation, r.Message, r.OrderCandidate, r.ReplyDraft),
		Link:     handlers.NewLinkHandler(log, r.Link, r.Product),
		Pretext:  handlers.NewPretextHandler(log, r.Pretext),
		Pipeline: handlers.NewPipelineHandler(log, s.ReplyPipeline),
	}
}

func wireRouter(cfg Config, h Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		WebhookHandler:  h.Webhook,
		ThreadHandler:   h.Thread,
		LinkHandler:     h.Link,
		PretextHandler:  h.Pretext,
		PipelineHandler: h.Pipeline,
		AllowOrigins:    cfg.AllowOrigins,
	})
}
