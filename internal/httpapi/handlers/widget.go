package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/leadchat/internal/common"
	"github.com/suPer8Hu/leadchat/internal/widget"
	"gorm.io/datatypes"
)

func (h *Handler) WidgetSettings(c *gin.Context) {
	identifier := strings.TrimSpace(c.Query("identifier"))
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'identifier' query parameter"})
		return
	}

	cfg, err := h.Widgets.GetConfig(c.Request.Context(), identifier)
	if errors.Is(err, widget.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Configuration not found for identifier: " + identifier})
		return
	}
	if err != nil {
		log.Printf("[WidgetSettings] identifier=%s err=%v", identifier, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type saveSettingsReq struct {
	ThemeColor        string `json:"theme_color"`
	InitialMessage    string `json:"initial_message"`
	RequireEmailFirst bool   `json:"require_email_first"`
}

// SaveWidgetSettings is the dashboard side of WidgetSettings.
func (h *Handler) SaveWidgetSettings(c *gin.Context) {
	var req saveSettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if strings.TrimSpace(req.ThemeColor) == "" || strings.TrimSpace(req.InitialMessage) == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "theme_color and initial_message required")
		return
	}
	cfg := &widget.Configuration{
		Identifier:        c.Param("identifier"),
		ThemeColor:        strings.TrimSpace(req.ThemeColor),
		InitialMessage:    req.InitialMessage,
		RequireEmailFirst: req.RequireEmailFirst,
	}
	if err := h.Widgets.SaveConfig(c.Request.Context(), cfg); err != nil {
		log.Printf("[SaveWidgetSettings] identifier=%s err=%v", cfg.Identifier, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to save settings")
		return
	}
	common.OK(c, gin.H{"identifier": cfg.Identifier})
}

type widgetEventReq struct {
	ConversationID *string         `json:"conversationId"`
	ThreadID       *string         `json:"threadId"`
	EventType      string          `json:"eventType"`
	EventDetails   json.RawMessage `json:"eventDetails"`
}

// WidgetEvent queues one telemetry record, or writes it when no queue is configured.
func (h *Handler) WidgetEvent(c *gin.Context) {
	var req widgetEventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.EventType) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid 'eventType' in request body."})
		return
	}

	details := datatypes.JSON("{}")
	if len(req.EventDetails) > 0 && string(req.EventDetails) != "null" {
		details = datatypes.JSON(req.EventDetails)
	}
	e := &widget.Event{
		ConversationID: req.ConversationID,
		ThreadID:       req.ThreadID,
		EventType:      req.EventType,
		EventDetails:   details,
	}

	ctx := c.Request.Context()
	var err error
	if h.Events != nil {
		err = h.Events.PublishEvent(ctx, e)
	} else {
		err = h.Widgets.InsertEvent(ctx, e)
	}
	if err != nil {
		log.Printf("[WidgetEvent] type=%s queued=%t err=%v", e.EventType, h.Events != nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) ListWidgetEvents(c *gin.Context) {
	events, err := h.Widgets.ListEvents(c.Request.Context(), widget.EventFilter{
		ConversationID: c.Query("conversation_id"),
		EventType:      c.Query("event_type"),
		Limit:          queryInt(c, "limit"),
	})
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list events")
		return
	}
	common.OK(c, gin.H{"events": events})
}
