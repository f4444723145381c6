package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/leadchat/internal/chat"
	"github.com/suPer8Hu/leadchat/internal/config"
	"github.com/suPer8Hu/leadchat/internal/widget"
	"gorm.io/gorm"
)

// Exchanger runs one widget utterance through the assistant.
type Exchanger interface {
	HandleExchange(ctx context.Context, req chat.ExchangeRequest) (*chat.ExchangeResult, error)
}

// EventPublisher queues widget events for the worker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e *widget.Event) error
}

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	ChatSvc Exchanger
	Chats   *chat.Repo
	Widgets *widget.Repo
	// Events may be nil; events are then written directly.
	Events EventPublisher
}

func NewHandler(db *gorm.DB, cfg config.Config, svc Exchanger, events EventPublisher) *Handler {
	return &Handler{
		DB:      db,
		Cfg:     cfg,
		ChatSvc: svc,
		Chats:   chat.NewRepo(db),
		Widgets: widget.NewRepo(db),
		Events:  events,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong", "time": time.Now().UTC()})
}
