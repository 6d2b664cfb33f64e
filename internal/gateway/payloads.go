package gateway

import (
	"bytes"
	"encoding/json"

	"chat-gateway/internal/models"
)

// Ack is the send_message acknowledgement.
type Ack struct {
	OK      bool            `json:"ok"`
	Message *models.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SendMessageRequest is the client payload of send_message and POST /api/chat/send.
type SendMessageRequest struct {
	ChatID       models.FlexInt     `json:"chatId"`
	Content      models.FlexString  `json:"content"`
	MessageType  models.FlexString  `json:"message_type"`
	MediaURL     *models.FlexString `json:"media_url"`
	Duration     *models.FlexInt    `json:"duration"`
	ReplyToID    *models.FlexInt    `json:"reply_to_id"`
	ReplyContent *models.FlexString `json:"reply_content"`
	ReplyType    *models.FlexString `json:"reply_type"`
	ReplySender  *models.FlexString `json:"reply_sender"`
}

// Input converts the request into a persistence input for senderID.
func (r SendMessageRequest) Input(senderID int) models.SendMessageInput {
	messageType := r.MessageType.String()
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	in := models.SendMessageInput{
		ChatID:       r.ChatID.Int(),
		SenderID:     senderID,
		Content:      r.Content.String(),
		MessageType:  messageType,
		MediaURL:     r.MediaURL.Ptr(),
		Duration:     r.Duration.Ptr(),
		ReplyContent: r.ReplyContent.Ptr(),
		ReplyType:    r.ReplyType.Ptr(),
		ReplySender:  r.ReplySender.Ptr(),
	}
	if id := r.ReplyToID.Ptr(); id != nil && *id != 0 {
		in.ReplyToID = id
	}
	return in
}

type chatRequest struct {
	ChatID models.FlexInt `json:"chatId"`
	UserID models.FlexInt `json:"userId"`
}

type typingRequest struct {
	ChatID   models.FlexInt  `json:"chatId"`
	UserID   models.FlexInt  `json:"userId"`
	IsTyping json.RawMessage `json:"isTyping"`
}

type messageRequest struct {
	MessageID  models.FlexInt     `json:"messageId"`
	ChatID     models.FlexInt     `json:"chatId"`
	NewContent *models.FlexString `json:"newContent"`
	Emoji      json.RawMessage    `json:"emoji"`
}

type signalRequest struct {
	To        models.FlexInt  `json:"to"`
	Offer     json.RawMessage `json:"offer"`
	IsVideo   json.RawMessage `json:"isVideo"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

// decodeArg unmarshals args[i] into v. A missing argument leaves v zero.
func decodeArg(args []json.RawMessage, i int, v any) error {
	if i >= len(args) || len(args[i]) == 0 {
		return nil
	}
	return json.Unmarshal(args[i], v)
}

// truthy mirrors JavaScript truthiness for a raw JSON value.
func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "false", "0", "-0", `""`:
		return false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f != 0
	}
	return true
}
