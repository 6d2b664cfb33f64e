package models

import (
	"encoding/json"
	"time"
)

// Server-to-client event names.
const (
	EventUserStatusChanged = "user_status_changed"
	EventReceiveMessage    = "receive_message"
	EventNewNotification   = "new_notification"
	EventRecentChatUpdated = "recent_chat_updated"
	EventUnreadCount       = "unread_count"
	EventMessagesRead      = "messages_read"
	EventRecentChatRead    = "recent_chat_read"
	EventUserTyping        = "user_typing"
	EventMessageRecalled   = "message_recalled"
	EventMessageEdited     = "message_edited"
	EventMessageReacted    = "message_reacted"
	EventIncomingCall      = "incoming_call"
	EventCallAnswered      = "call_answered"
	EventIceCandidate      = "ice_candidate"
	EventCallEnded         = "call_ended"
)

// UserStatusChanged announces a presence transition.
type UserStatusChanged struct {
	UserID int    `json:"userId"`
	Status string `json:"status"`
}

// NewNotification is pushed to a receiver's user room.
type NewNotification struct {
	Type     string `json:"type"`
	SenderID int    `json:"senderId"`
	ChatID   int    `json:"chatId"`
	Content  string `json:"content"`
}

// RecentChatUpdated refreshes a member's chat list entry.
type RecentChatUpdated struct {
	ChatID      int       `json:"chat_id"`
	LastMessage string    `json:"last_message"`
	LastTime    time.Time `json:"last_time"`
	SenderID    int       `json:"sender_id"`
	MessageType string    `json:"message_type"`
	MediaURL    *string   `json:"media_url"`
	UnreadInc   int       `json:"unread_inc"`
}

type MessagesRead struct {
	ChatID int `json:"chatId"`
	ReadBy int `json:"readBy"`
}

type RecentChatRead struct {
	ChatID int `json:"chatId"`
}

type UserTyping struct {
	UserID   int  `json:"userId"`
	IsTyping bool `json:"isTyping"`
}

type MessageRecalled struct {
	MessageID int `json:"messageId"`
}

type MessageEdited struct {
	MessageID  int    `json:"messageId"`
	NewContent string `json:"newContent"`
}

type MessageReacted struct {
	MessageID int             `json:"messageId"`
	Emoji     json.RawMessage `json:"emoji,omitempty"`
}

type IncomingCall struct {
	From    int             `json:"from"`
	Offer   json.RawMessage `json:"offer,omitempty"`
	IsVideo bool            `json:"isVideo"`
}

type CallAnswered struct {
	Answer json.RawMessage `json:"answer,omitempty"`
}

type IceCandidate struct {
	Candidate json.RawMessage `json:"candidate"`
}
