package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-gateway/internal/models"
	"chat-gateway/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) GetChatUsers(ctx context.Context, chatID int) ([]models.ChatUser, error) {
	args := m.Called(ctx, chatID)
	var users []models.ChatUser
	if val := args.Get(0); val != nil {
		users = val.([]models.ChatUser)
	}
	return users, args.Error(1)
}

func (m *ChatRepositoryMock) GetOrCreateDm(ctx context.Context, userID int, otherID int) (int, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Int(0), args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) SendMessage(ctx context.Context, in models.SendMessageInput) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkMessagesRead(ctx context.Context, chatID int, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) RecallMessage(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID int, content string) error {
	args := m.Called(ctx, messageID, content)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GetMessageMeta(ctx context.Context, messageID int) (models.MessageMeta, error) {
	args := m.Called(ctx, messageID)
	var meta models.MessageMeta
	if val := args.Get(0); val != nil {
		meta = val.(models.MessageMeta)
	}
	return meta, args.Error(1)
}

func (m *MessageRepositoryMock) GetUnreadCount(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) CreateMessageNotification(ctx context.Context, in models.MessageNotificationInput) (models.Notification, error) {
	args := m.Called(ctx, in)
	var n models.Notification
	if val := args.Get(0); val != nil {
		n = val.(models.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationRepositoryMock) GetUnreadCount(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

var (
	_ repositories.ChatRepository         = (*ChatRepositoryMock)(nil)
	_ repositories.MessageRepository      = (*MessageRepositoryMock)(nil)
	_ repositories.NotificationRepository = (*NotificationRepositoryMock)(nil)
)
