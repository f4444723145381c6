package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/leadchat/internal/chat"
	"github.com/suPer8Hu/leadchat/internal/common"
	"gorm.io/gorm"
)

func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}

func (h *Handler) ListLeads(c *gin.Context) {
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}
	status := chat.LeadStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid status")
		return
	}

	leads, err := h.Chats.ListLeads(c.Request.Context(), chat.LeadFilter{
		Status:   status,
		Kind:     chat.LeadKind(c.Query("kind")),
		Limit:    queryInt(c, "limit"),
		BeforeID: beforeID,
	})
	if err != nil {
		log.Printf("[ListLeads] err=%v", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list leads")
		return
	}

	var nextBeforeID uint64
	if len(leads) > 0 {
		nextBeforeID = leads[len(leads)-1].ID
	}
	common.OK(c, gin.H{"leads": leads, "next_before_id": nextBeforeID})
}

type updateLeadStatusReq struct {
	Status chat.LeadStatus `json:"status"`
}

func (h *Handler) UpdateLeadStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid lead id")
		return
	}
	var req updateLeadStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !req.Status.Valid() {
		common.Fail(c, http.StatusBadRequest, 10005, "invalid status")
		return
	}

	if err := h.Chats.UpdateLeadStatus(c.Request.Context(), id, req.Status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "lead not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to update lead")
		return
	}
	common.OK(c, gin.H{"id": id, "status": req.Status})
}

func (h *Handler) ListConversations(c *gin.Context) {
	convs, err := h.Chats.ListConversations(c.Request.Context(), queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list conversations")
		return
	}
	common.OK(c, gin.H{"conversations": convs})
}

func (h *Handler) ListConversationMessages(c *gin.Context) {
	ctx := c.Request.Context()
	conv, err := h.Chats.GetConversation(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	msgs, err := h.Chats.ListMessages(ctx, conv.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}
	common.OK(c, gin.H{"conversation": conv, "messages": msgs})
}
