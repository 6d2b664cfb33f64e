package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-gateway/internal/gateway"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/telemetry"
)

// ChatHandler serves the chat endpoints that emit realtime events.
type ChatHandler struct {
	messageRepo repositories.MessageRepository
	chatRepo    repositories.ChatRepository
	broadcaster gateway.Broadcaster
	audit       *telemetry.AuditEmitter
	logger      *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(messageRepo repositories.MessageRepository, chatRepo repositories.ChatRepository, broadcaster gateway.Broadcaster, audit *telemetry.AuditEmitter, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		messageRepo: messageRepo,
		chatRepo:    chatRepo,
		broadcaster: broadcaster,
		audit:       audit,
		logger:      logger.Named("handlers"),
	}
}

// SendMessage persists a message for the authenticated sender and broadcasts it to the chat room.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	authID := c.GetInt(middleware.UserIDKey)
	if authID == 0 {
		forbid(c)
		return
	}

	var req gateway.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID.Int() <= 0 {
		badRequest(c, "invalid_chatId")
		return
	}

	msg, err := h.messageRepo.SendMessage(c.Request.Context(), req.Input(authID))
	if err != nil {
		h.fail(c, "sendMessage_failed", err)
		return
	}
	h.broadcaster.EmitToRoom(models.ChatRoom(msg.ChatID), models.EventReceiveMessage, msg)
	h.emitAudit(c, telemetry.LevelInfo, "chat message sent")
	c.JSON(http.StatusOK, msg)
}

// MarkRead marks the chat read for the authenticated user.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	authID := c.GetInt(middleware.UserIDKey)
	if authID == 0 {
		forbid(c)
		return
	}

	var req struct {
		ChatID models.FlexInt `json:"chatId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ChatID.Int() <= 0 {
		badRequest(c, "invalid_chatId")
		return
	}
	chatID := req.ChatID.Int()

	if err := h.messageRepo.MarkMessagesRead(c.Request.Context(), chatID, authID); err != nil {
		h.fail(c, "markRead_failed", err)
		return
	}
	h.broadcaster.EmitToRoom(models.ChatRoom(chatID), models.EventMessagesRead, models.MessagesRead{ChatID: chatID, ReadBy: authID})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteMessage recalls a message owned by the authenticated user.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	meta, ok := h.ownedMessage(c)
	if !ok {
		return
	}

	if err := h.messageRepo.RecallMessage(c.Request.Context(), meta.ID); err != nil {
		h.fail(c, "recallMessage_failed", err)
		return
	}
	h.broadcaster.EmitToRoom(models.ChatRoom(meta.ChatID), models.EventMessageRecalled, models.MessageRecalled{MessageID: meta.ID})
	h.emitAudit(c, telemetry.LevelInfo, "chat message recalled")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// EditMessage replaces the content of a message owned by the authenticated user.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	if c.GetInt(middleware.UserIDKey) == 0 {
		forbid(c)
		return
	}
	if _, ok := messageIDParam(c); !ok {
		badRequest(c, "invalid_messageId")
		return
	}

	var req struct {
		NewContent *string `json:"newContent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.NewContent == nil {
		badRequest(c, "invalid_newContent")
		return
	}

	meta, ok := h.ownedMessage(c)
	if !ok {
		return
	}

	if err := h.messageRepo.EditMessage(c.Request.Context(), meta.ID, *req.NewContent); err != nil {
		h.fail(c, "editMessage_failed", err)
		return
	}
	h.broadcaster.EmitToRoom(models.ChatRoom(meta.ChatID), models.EventMessageEdited, models.MessageEdited{MessageID: meta.ID, NewContent: *req.NewContent})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetUnreadCount returns the caller's unread chat message count.
func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	authID := c.GetInt(middleware.UserIDKey)
	userID, err := strconv.Atoi(c.Param("userId"))
	if authID == 0 || err != nil || userID != authID {
		forbid(c)
		return
	}

	count, err := h.messageRepo.GetUnreadCount(c.Request.Context(), authID)
	if err != nil {
		h.fail(c, "getUnreadCount_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// GetOrCreateDm returns the one-to-one chat between the caller and receiverId.
func (h *ChatHandler) GetOrCreateDm(c *gin.Context) {
	authID := c.GetInt(middleware.UserIDKey)
	if authID == 0 {
		forbid(c)
		return
	}

	var req struct {
		ReceiverID models.FlexInt `json:"receiverId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ReceiverID.Int() <= 0 {
		badRequest(c, "invalid_receiverId")
		return
	}
	if req.ReceiverID.Int() == authID {
		badRequest(c, "cannot_dm_self")
		return
	}

	chatID, err := h.chatRepo.GetOrCreateDm(c.Request.Context(), authID, req.ReceiverID.Int())
	if err != nil {
		h.fail(c, "getOrCreateDm_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID})
}

// ownedMessage loads the :id message and writes the error response unless the caller sent it.
func (h *ChatHandler) ownedMessage(c *gin.Context) (models.MessageMeta, bool) {
	authID := c.GetInt(middleware.UserIDKey)
	if authID == 0 {
		forbid(c)
		return models.MessageMeta{}, false
	}
	messageID, ok := messageIDParam(c)
	if !ok {
		badRequest(c, "invalid_messageId")
		return models.MessageMeta{}, false
	}

	meta, err := h.messageRepo.GetMessageMeta(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message_not_found"})
			return models.MessageMeta{}, false
		}
		h.fail(c, "getMessageMeta_failed", err)
		return models.MessageMeta{}, false
	}
	if meta.SenderID != authID {
		h.emitAudit(c, telemetry.LevelError, "not allowed to modify message")
		forbid(c)
		return models.MessageMeta{}, false
	}
	return meta, true
}

func (h *ChatHandler) fail(c *gin.Context, code string, err error) {
	h.logger.Error("request failed", zap.String("code", code), zap.String("path", c.FullPath()), zap.Error(err))
	h.emitAudit(c, telemetry.LevelError, code)
	c.JSON(http.StatusInternalServerError, gin.H{"error": code})
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), c.GetInt(middleware.UserIDKey))
}

func messageIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func forbid(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}

func badRequest(c *gin.Context, code string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code})
}
