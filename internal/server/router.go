package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/himanstore/dmsales-backend/internal/handlers"
)

type RouterConfig struct {
	WebhookHandler  *handlers.WebhookHandler
	ThreadHandler   *handlers.ThreadHandler
	LinkHandler     *handlers.LinkHandler
	PretextHandler  *handlers.PretextHandler
	PipelineHandler *handlers.PipelineHandler
	AllowOrigins    []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(TraceMiddleware())

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// Inbound events
	router.POST("/webhook/instagram", cfg.WebhookHandler.ReceiveEvent)

	// Admin API
	api := router.Group("/api")
	{
		api.GET("/threads/:id", cfg.ThreadHandler.GetThread)
		api.GET("/threads/:id/messages", cfg.ThreadHandler.ListMessages)
		api.GET("/threads/:id/drafts", cfg.ThreadHandler.ListDrafts)
		api.POST("/threads/:id/reply", cfg.PipelineHandler.RunReplyPipeline)

		api.GET("/links", cfg.LinkHandler.ListLinks)
		api.PUT("/links", cfg.LinkHandler.SetLink)

		api.GET("/pretexts", cfg.PretextHandler.ListPretexts)
		api.POST("/pretexts", cfg.PretextHandler.CreatePretext)
	}

	return router
}
