package app

import (
	"fmt"

	"github.com/himanstore/dmsales-backend/internal/clients/openai"
	redisclient "github.com/himanstore/dmsales-backend/internal/clients/redis"
	"github.com/himanstore/dmsales-backend/internal/platform/logger"
)

type Clients struct {
	OpenAI     openai.Client
	Locker     redisclient.ConversationLocker
	MediaCache redisclient.MediaCache
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	ai, err := openai.NewClient(log)
	if err != nil {
		return c, fmt.Errorf("init openai client: %w", err)
	}
	c.OpenAI = ai

	locker, err := redisclient.NewConversationLocker(log)
	if err != nil {
		// The pipeline degrades to in-process ordering without redis.
		log.Warn("Conversation locker unavailable", "error", err.Error())
	} else {
		c.Locker = locker
	}

	cache, err := redisclient.NewMediaCache(log)
	if err != nil {
		log.Warn("Media cache unavailable, fetching uncached", "error", err.Error())
	} else {
		c.MediaCache = cache
	}

	return c, nil
}
