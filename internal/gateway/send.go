package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
)

const (
	summaryMaxRunes = 50
	summaryImage    = "Đã gửi một ảnh"
	summaryVoice    = "Đã gửi tin nhắn thoại"
)

func (g *Gateway) handleSendMessage(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	senderID := s.UserID()
	if senderID == 0 {
		g.drop(ctx, "send_message", s, opErr("send_message", ErrNotRegistered, nil))
		return Ack{Error: codeNotRegistered}, true
	}

	var req SendMessageRequest
	if err := decodeArg(args, 0, &req); err != nil || req.ChatID.Int() <= 0 {
		g.drop(ctx, "send_message", s, opErr("send_message", ErrInvalidParams, err))
		return Ack{Error: codeInvalidParams}, true
	}

	msg, err := g.sendMessage(ctx, req.Input(senderID))
	if err != nil {
		g.drop(ctx, "send_message", s, err)
		return Ack{Error: codeSendMessageFailed}, true
	}
	return Ack{OK: true, Message: &msg}, true
}

// sendMessage persists in, broadcasts it to the chat room and notifies every
// other member. Only the persistence step can fail the call.
func (g *Gateway) sendMessage(ctx context.Context, in models.SendMessageInput) (models.Message, error) {
	msg, err := g.messages.SendMessage(ctx, in)
	if err != nil {
		return models.Message{}, opErr("send_message", ErrPersistence, err)
	}

	g.broadcaster.EmitToRoom(models.ChatRoom(msg.ChatID), models.EventReceiveMessage, msg)
	_ = observability.PublishEvent(ctx, observability.RoutingKeyMessageSent, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_sent",
		Payload: map[string]any{
			"message_id":   msg.ID,
			"chat_id":      msg.ChatID,
			"sender_id":    msg.SenderID,
			"message_type": msg.MessageType,
		},
	}, observability.BuildHeaders("", observability.TraceIDFromContext(ctx)))

	for _, err := range g.fanOut(ctx, msg) {
		spanError(ctx, err)
		g.logger.Warn("notification fan-out failed", zap.Int("message_id", msg.ID), zap.Int("chat_id", msg.ChatID), zap.Error(err))
	}
	return msg, nil
}

// fanOut updates every member's chat list preview with the summary text and notifies each receiver
// independently. It returns the failures once every receiver task has settled.
func (g *Gateway) fanOut(ctx context.Context, msg models.Message) []error {
	members, err := g.chats.GetChatUsers(ctx, msg.ChatID)
	if err != nil {
		observability.IncFanoutFailure("members")
		return []error{opErr("get_chat_users", ErrNotification, err)}
	}

	summary := Summarize(msg)
	seen := make(map[int]struct{}, len(members))
	receivers := make([]int, 0, len(members))
	for _, m := range members {
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}

		unreadInc := 1
		if m.UserID == msg.SenderID {
			unreadInc = 0
		} else {
			receivers = append(receivers, m.UserID)
		}
		g.broadcaster.EmitToUser(m.UserID, models.EventRecentChatUpdated, models.RecentChatUpdated{
			ChatID:      msg.ChatID,
			LastMessage: summary,
			LastTime:    msg.CreatedAt,
			SenderID:    msg.SenderID,
			MessageType: msg.MessageType,
			MediaURL:    msg.MediaURL,
			UnreadInc:   unreadInc,
		})
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, receiverID := range receivers {
		wg.Add(1)
		go func(receiverID int) {
			defer wg.Done()
			if err := g.notifyReceiver(ctx, msg, receiverID, summary); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(receiverID)
	}
	wg.Wait()
	return errs
}

func (g *Gateway) notifyReceiver(ctx context.Context, msg models.Message, receiverID int, summary string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.IncFanoutFailure("panic")
			err = opErr("notify_receiver", ErrNotification, fmt.Errorf("receiver %d: panic: %v", receiverID, r))
		}
	}()

	if _, err := g.notifications.CreateMessageNotification(ctx, models.MessageNotificationInput{
		UserID:   receiverID,
		SenderID: msg.SenderID,
		ChatID:   msg.ChatID,
		Content:  summary,
	}); err != nil {
		observability.IncFanoutFailure("create_notification")
		return opErr("create_notification", ErrNotification, fmt.Errorf("receiver %d: %w", receiverID, err))
	}
	g.broadcaster.EmitToUser(receiverID, models.EventNewNotification, models.NewNotification{
		Type:     models.NotificationTypeMessage,
		SenderID: msg.SenderID,
		ChatID:   msg.ChatID,
		Content:  summary,
	})

	count, err := g.notifications.GetUnreadCount(ctx, receiverID)
	if err != nil {
		observability.IncFanoutFailure("unread_count")
		return opErr("get_unread_count", ErrNotification, fmt.Errorf("receiver %d: %w", receiverID, err))
	}
	g.broadcaster.EmitToUser(receiverID, models.EventUnreadCount, count)
	return nil
}

// Summarize renders the notification text of a message.
func Summarize(msg models.Message) string {
	switch msg.MessageType {
	case models.MessageTypeText:
		return truncateRunes(replyBody(msg.Content), summaryMaxRunes)
	case models.MessageTypeImage:
		return summaryImage
	default:
		return summaryVoice
	}
}

// replyBody returns the inner message of a reply envelope, or content unchanged.
func replyBody(content string) string {
	if len(content) == 0 || content[0] != '{' {
		return content
	}
	var env models.ReplyEnvelope
	if err := json.Unmarshal([]byte(content), &env); err != nil || env.ReplyTo == 0 {
		return content
	}
	return env.Message
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
