package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"chat-gateway/internal/models"
)

// NotificationRepository stores per-receiver notifications.
type NotificationRepository interface {
	CreateMessageNotification(ctx context.Context, in models.MessageNotificationInput) (models.Notification, error)
	GetUnreadCount(ctx context.Context, userID int) (int, error)
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// CreateMessageNotification inserts an unread message notification for one receiver.
func (r *NotificationRepo) CreateMessageNotification(ctx context.Context, in models.MessageNotificationInput) (models.Notification, error) {
	content := in.Content
	if content == "" {
		content = models.DefaultMessageNotificationContent
	}
	var n models.Notification
	err := r.db.QueryRowxContext(ctx, `INSERT INTO notifications (user_id, sender_id, chat_id, type, content, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, user_id, sender_id, chat_id, type, content, status, created_at`,
		in.UserID, in.SenderID, in.ChatID, models.NotificationTypeMessage, content, models.NotificationStatusUnread).StructScan(&n)
	if err != nil {
		return models.Notification{}, errors.Wrap(err, "insert notification")
	}
	return n, nil
}

// GetUnreadCount counts the user's unread notifications.
func (r *NotificationRepo) GetUnreadCount(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND status=$2`,
		userID, models.NotificationStatusUnread)
	return count, errors.Wrap(err, "count unread notifications")
}
