package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/leadchat/internal/chat"
	"github.com/suPer8Hu/leadchat/internal/httpapi/middleware"
)

type exchangeReq struct {
	Message   string `json:"message"`
	ThreadID  string `json:"threadId"`
	UserEmail string `json:"userEmail"`
	StartURL  string `json:"startUrl"`
	Channel   string `json:"channel"`
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	return c.ClientIP()
}

// Exchange keeps the widget's bare JSON contract: the result on 200 and
// {"error": ...} otherwise.
func (h *Handler) Exchange(c *gin.Context) {
	var req exchangeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	meta := chat.ExchangeMetadata{
		UserEmail: req.UserEmail,
		Channel:   req.Channel,
		StartURL:  req.StartURL,
		IPAddress: clientIP(c),
		UserAgent: c.Request.UserAgent(),
	}
	if uid, ok := middleware.UserID(c); ok {
		meta.UserID = &uid
	}

	ctx := c.Request.Context()
	if h.Cfg.ExchangeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Cfg.ExchangeTimeout)
		defer cancel()
	}

	res, err := h.ChatSvc.HandleExchange(ctx, chat.ExchangeRequest{
		Message:  req.Message,
		ThreadID: req.ThreadID,
		Metadata: meta,
	})
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required and must be a string"})
			return
		}
		log.Printf("[Exchange] failed request_id=%s thread=%s err=%v", c.GetString(middleware.RequestIDKey), req.ThreadID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}
