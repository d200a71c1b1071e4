package handlers

import (
	"net/http"

	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/internal/service"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ConversationHandler struct {
	logger        *zap.Logger
	conversations *service.ConversationService
}

func NewConversationHandler(conversations *service.ConversationService, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{logger: logger, conversations: conversations}
}

// ListConversations handles GET /api/v1/conversations
// @Summary      List my conversations
// @Description  Most recent activity first, each with its last message and the caller's unread count.
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ConversationListResponse
// @Router       /conversations [get]
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	summaries, err := h.conversations.List(c.Request.Context(), userID)
	if err != nil {
		abort(c, err)
		return
	}
	resp := ConversationListResponse{
		Conversations: make([]ConversationResponse, len(summaries)),
		Count:         len(summaries),
	}
	for i, summary := range summaries {
		resp.Conversations[i] = newConversationResponse(summary)
	}
	c.JSON(http.StatusOK, resp)
}

// SendMessage handles POST /api/v1/conversations/messages
// @Summary      Send a message about an item
// @Description  Opens the conversation between the buyer and the item owner on first use. A buyer writes to the owner; the owner must name the buyer in `recipient_id`.
// @Tags         conversations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Request-ID  header    string              false  "Idempotency key"
// @Param        request       body      SendMessageRequest  true   "Message"
// @Success      201           {object}  MessageResponse
// @Failure      400           {object}  errors.StandardError  "Empty body or missing recipient"
// @Failure      404           {object}  errors.StandardError  "Item or recipient not found"
// @Router       /conversations/messages [post]
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.NewInvalidRequest("invalid request", err.Error()))
		return
	}
	msg, _, err := h.conversations.Send(c.Request.Context(), commands.SendMessageCommand{
		SenderID:    userID,
		ItemID:      req.ItemID,
		RecipientID: req.RecipientID,
		Body:        req.Body,
	})
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMessageResponse(msg))
}

// GetMessages handles GET /api/v1/conversations/:id/messages
// @Summary      Read a conversation
// @Description  Returns every message in send order and marks the conversation read for the caller.
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Conversation ID (UUID)"
// @Success      200  {object}  MessageListResponse
// @Failure      403  {object}  errors.StandardError  "Not a participant"
// @Failure      404  {object}  errors.StandardError  "Conversation not found"
// @Router       /conversations/{id}/messages [get]
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	messages, err := h.conversations.Messages(c.Request.Context(), id, userID)
	if err != nil {
		abort(c, err)
		return
	}
	resp := MessageListResponse{ConversationID: id, Messages: make([]MessageResponse, len(messages))}
	for i, msg := range messages {
		resp.Messages[i] = newMessageResponse(msg)
	}
	c.JSON(http.StatusOK, resp)
}

// MarkRead handles POST /api/v1/conversations/:id/read
// @Summary      Mark a conversation read
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Conversation ID (UUID)"
// @Success      200  {object}  MarkReadResponse
// @Failure      403  {object}  errors.StandardError  "Not a participant"
// @Failure      404  {object}  errors.StandardError  "Conversation not found"
// @Router       /conversations/{id}/read [post]
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	marked, err := h.conversations.MarkRead(c.Request.Context(), id, userID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, MarkReadResponse{Marked: marked})
}

// Unread handles GET /api/v1/conversations/unread
// @Summary      Count unread messages
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  UnreadResponse
// @Router       /conversations/unread [get]
func (h *ConversationHandler) Unread(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	summary, err := h.conversations.Unread(c.Request.Context(), userID)
	if err != nil {
		abort(c, err)
		return
	}
	bySender := summary.BySender
	if bySender == nil {
		bySender = []domain.UnreadBySender{}
	}
	c.JSON(http.StatusOK, UnreadResponse{Total: summary.Total, BySender: bySender})
}
