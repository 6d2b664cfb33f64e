package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"chat-gateway/internal/models"
)

var ErrMessageNotFound = stderrors.New("message not found")

const messageColumns = `id, chat_id, sender_id, content, status, message_type, media_url, duration, created_at,
        reply_to_id, reply_content, reply_type, reply_sender`

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	SendMessage(ctx context.Context, in models.SendMessageInput) (models.Message, error)
	MarkMessagesRead(ctx context.Context, chatID int, userID int) error
	RecallMessage(ctx context.Context, messageID int) error
	EditMessage(ctx context.Context, messageID int, content string) error
	GetMessageMeta(ctx context.Context, messageID int) (models.MessageMeta, error)
	GetUnreadCount(ctx context.Context, userID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// SendMessage stores a message with status sent and bumps the chat's updated_at.
func (r *MessageRepo) SendMessage(ctx context.Context, in models.SendMessageInput) (models.Message, error) {
	content, err := StoredContent(in)
	if err != nil {
		return models.Message{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, errors.Wrap(err, "begin send message")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	messageType := in.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages
        (chat_id, sender_id, content, status, message_type, media_url, duration, reply_to_id, reply_content, reply_type, reply_sender)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING `+messageColumns,
		in.ChatID, in.SenderID, content, models.MessageStatusSent, messageType, nonEmpty(in.MediaURL), in.Duration,
		in.ReplyToID, in.ReplyContent, in.ReplyType, in.ReplySender).StructScan(&msg)
	if err != nil {
		return models.Message{}, errors.Wrap(err, "insert message")
	}

	if _, err = tx.ExecContext(ctx, `UPDATE chats SET updated_at = NOW() WHERE id=$1`, in.ChatID); err != nil {
		return models.Message{}, errors.Wrap(err, "touch chat")
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, errors.Wrap(err, "commit send message")
	}
	return msg, nil
}

// MarkMessagesRead marks every message in the chat not sent by userID as read.
func (r *MessageRepo) MarkMessagesRead(ctx context.Context, chatID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE messages SET status=$3 WHERE chat_id=$1 AND sender_id<>$2 AND status<>$3`,
		chatID, userID, models.MessageStatusRead)
	return errors.Wrap(err, "mark messages read")
}

// RecallMessage blanks a message for everyone.
func (r *MessageRepo) RecallMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET content=$2, media_url=NULL, message_type=$3, status=$4 WHERE id=$1`,
		messageID, models.RecalledContent, models.MessageTypeRecalled, models.MessageStatusRecalled)
	if err != nil {
		return errors.Wrap(err, "recall message")
	}
	return requireRow(res)
}

// EditMessage replaces the body of a message.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int, content string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET content=$2 WHERE id=$1`, messageID, content)
	if err != nil {
		return errors.Wrap(err, "edit message")
	}
	return requireRow(res)
}

// GetMessageMeta returns the chat and sender of a message.
func (r *MessageRepo) GetMessageMeta(ctx context.Context, messageID int) (models.MessageMeta, error) {
	var meta models.MessageMeta
	err := r.db.GetContext(ctx, &meta, `SELECT id, chat_id, sender_id FROM messages WHERE id=$1`, messageID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.MessageMeta{}, ErrMessageNotFound
	}
	return meta, errors.Wrap(err, "get message meta")
}

// GetUnreadCount counts messages from others still sent or delivered across the user's chats.
func (r *MessageRepo) GetUnreadCount(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages m
        INNER JOIN chat_users cu ON cu.chat_id = m.chat_id
        WHERE cu.user_id=$1 AND m.sender_id<>$1 AND m.status IN ($2, $3)`,
		userID, models.MessageStatusSent, models.MessageStatusDelivered)
	return count, errors.Wrap(err, "count unread messages")
}

// StoredContent returns the persisted body: the plain content, or the reply
// envelope when the message replies to another one.
func StoredContent(in models.SendMessageInput) (string, error) {
	if in.ReplyToID == nil || *in.ReplyToID == 0 {
		return in.Content, nil
	}
	body, err := json.Marshal(models.ReplyEnvelope{
		ReplyTo:      *in.ReplyToID,
		ReplyContent: in.ReplyContent,
		ReplyType:    in.ReplyType,
		ReplySender:  in.ReplySender,
		Message:      in.Content,
	})
	if err != nil {
		return "", errors.Wrap(err, "encode reply envelope")
	}
	return string(body), nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
