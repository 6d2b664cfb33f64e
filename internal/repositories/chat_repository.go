package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"chat-gateway/internal/models"
)

var (
	ErrChatNotFound = stderrors.New("chat not found")
	ErrSelfChat     = stderrors.New("cannot create chat with self")
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	GetChatUsers(ctx context.Context, chatID int) ([]models.ChatUser, error)
	GetOrCreateDm(ctx context.Context, userID int, otherID int) (int, error)
	IsParticipant(ctx context.Context, chatID int, userID int) (bool, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// GetChatUsers lists the members of a chat.
func (r *ChatRepo) GetChatUsers(ctx context.Context, chatID int) ([]models.ChatUser, error) {
	var users []models.ChatUser
	err := r.db.SelectContext(ctx, &users, `SELECT user_id FROM chat_users WHERE chat_id=$1 ORDER BY user_id`, chatID)
	return users, errors.Wrap(err, "get chat users")
}

// GetOrCreateDm returns the one-to-one chat between two users, creating it if needed.
// Concurrent calls for the same pair serialize on an advisory lock.
func (r *ChatRepo) GetOrCreateDm(ctx context.Context, userID int, otherID int) (chatID int, err error) {
	if userID == otherID {
		return 0, ErrSelfChat
	}
	low, high := userID, otherID
	if low > high {
		low, high = high, low
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin get or create dm")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, low, high); err != nil {
		return 0, errors.Wrap(err, "lock dm pair")
	}

	err = tx.GetContext(ctx, &chatID, `SELECT c.id FROM chats c
        INNER JOIN chat_users a ON a.chat_id = c.id AND a.user_id=$1
        INNER JOIN chat_users b ON b.chat_id = c.id AND b.user_id=$2
        WHERE c.is_group_chat = FALSE
        AND (SELECT COUNT(*) FROM chat_users cu WHERE cu.chat_id = c.id) = 2
        ORDER BY c.id ASC
        LIMIT 1`, low, high)
	switch {
	case err == nil:
		if err = tx.Commit(); err != nil {
			return 0, errors.Wrap(err, "commit get dm")
		}
		return chatID, nil
	case !stderrors.Is(err, sql.ErrNoRows):
		return 0, errors.Wrap(err, "find dm")
	}

	name := fmt.Sprintf("Chat 1-1: U%d & U%d", low, high)
	if err = tx.GetContext(ctx, &chatID, `INSERT INTO chats (name, is_group_chat) VALUES ($1, FALSE) RETURNING id`, name); err != nil {
		return 0, errors.Wrap(err, "insert dm chat")
	}
	for _, id := range []int{low, high} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_users (chat_id, user_id, is_admin) VALUES ($1, $2, FALSE)`, chatID, id); err != nil {
			return 0, errors.Wrap(err, "insert dm member")
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit create dm")
	}
	return chatID, nil
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_users WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, errors.Wrap(err, "check participant")
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT id, name, is_group_chat, created_at, updated_at FROM chats WHERE id=$1`, chatID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, errors.Wrap(err, "get chat")
}
