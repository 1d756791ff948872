package app

import (
	"gorm.io/gorm"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/repos"
)

type Repos struct {
	Conversation   repos.ConversationRepo
	Message        repos.MessageRepo
	Customer       repos.CustomerProfileRepo
	Product        repos.ProductRepo
	Pretext        repos.PretextRepo
	Link           repos.LinkRepo
	OrderCandidate repos.OrderCandidateRepo
	ReplyDraft     repos.ReplyDraftRepo
	CartItem       repos.CartItemRepo
	Escalation     repos.EscalationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Conversation:   repos.NewConversationRepo(db, log),
		Message:        repos.NewMessageRepo(db, log),
		Customer:       repos.NewCustomerProfileRepo(db, log),
		Product:        repos.NewProductRepo(db, log),
		Pretext:        repos.NewPretextRepo(db, log),
		Link:           repos.NewLinkRepo(db, log),
		OrderCandidate: repos.NewOrderCandidateRepo(db, log),
		ReplyDraft:     repos.NewReplyDraftRepo(db, log),
		CartItem:       repos.NewCartItemRepo(db, log),
		Escalation:     repos.NewEscalationRepo(db, log),
	}
}
