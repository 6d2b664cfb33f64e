package models

import "time"

const (
	NotificationTypeMessage = "message"

	NotificationStatusUnread = "unread"
	NotificationStatusRead   = "read"

	// DefaultMessageNotificationContent is stored when no summary is supplied.
	DefaultMessageNotificationContent = "đã gửi tin nhắn cho bạn"
)

// Notification is a persisted per-receiver notification.
type Notification struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	ChatID    *int      `db:"chat_id" json:"chat_id"`
	Type      string    `db:"type" json:"type"`
	Content   string    `db:"content" json:"content"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageNotificationInput describes the notification created for one receiver of a message.
type MessageNotificationInput struct {
	UserID   int
	SenderID int
	ChatID   int
	Content  string
}
