package models

import (
	"strconv"
	"time"
)

// Chat is a conversation between two or more users.
type Chat struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	IsGroupChat bool      `db:"is_group_chat" json:"is_group_chat"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ChatUser is one membership row of a chat.
type ChatUser struct {
	UserID int `db:"user_id" json:"user_id"`
}

// UserRoom names the room that addresses every connection of a user.
func UserRoom(userID int) string {
	return "user_" + strconv.Itoa(userID)
}

// ChatRoom names the room of a chat's live viewers.
func ChatRoom(chatID int) string {
	return "chat_" + strconv.Itoa(chatID)
}
