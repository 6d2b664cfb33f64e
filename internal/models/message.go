package models

import "time"

// Message statuses.
const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusRecalled  = "recalled"
)

// Message types the gateway summarizes specially.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeRecalled = "recalled"
)

// RecalledContent replaces the body of a recalled message.
const RecalledContent = "[recalled]"

// Message represents a persisted chat message.
type Message struct {
	ID           int       `db:"id" json:"id"`
	ChatID       int       `db:"chat_id" json:"chat_id"`
	SenderID     int       `db:"sender_id" json:"sender_id"`
	Content      string    `db:"content" json:"content"`
	Status       string    `db:"status" json:"status"`
	MessageType  string    `db:"message_type" json:"message_type"`
	MediaURL     *string   `db:"media_url" json:"media_url"`
	Duration     *int      `db:"duration" json:"duration"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	ReplyToID    *int      `db:"reply_to_id" json:"reply_to_id"`
	ReplyContent *string   `db:"reply_content" json:"reply_content"`
	ReplyType    *string   `db:"reply_type" json:"reply_type"`
	ReplySender  *string   `db:"reply_sender" json:"reply_sender"`
}

// MessageMeta is the ownership view of a message.
type MessageMeta struct {
	ID       int `db:"id" json:"id"`
	ChatID   int `db:"chat_id" json:"chat_id"`
	SenderID int `db:"sender_id" json:"sender_id"`
}

// SendMessageInput carries a new message to the persistence layer.
type SendMessageInput struct {
	ChatID       int
	SenderID     int
	Content      string
	MessageType  string
	MediaURL     *string
	Duration     *int
	ReplyToID    *int
	ReplyContent *string
	ReplyType    *string
	ReplySender  *string
}

// ReplyEnvelope is stored as the message content when the message replies to another.
type ReplyEnvelope struct {
	ReplyTo      int     `json:"reply_to"`
	ReplyContent *string `json:"reply_content"`
	ReplyType    *string `json:"reply_type"`
	ReplySender  *string `json:"reply_sender"`
	Message      string  `json:"message"`
}
