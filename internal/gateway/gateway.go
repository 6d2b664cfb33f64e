package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/presence"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/telemetry"
)

// Presence is the registry the gateway binds connections into.
type Presence interface {
	Register(ctx context.Context, userID int, connID string) error
	Unregister(ctx context.Context, userID int, connID string) error
}

// Deps are the collaborators of a Gateway. Audit may be nil.
type Deps struct {
	Messages      repositories.MessageRepository
	Chats         repositories.ChatRepository
	Notifications repositories.NotificationRepository
	Presence      Presence
	Broadcaster   Broadcaster
	Audit         *telemetry.AuditEmitter
	Logger        *zap.Logger
}

type handlerFunc func(ctx context.Context, s Socket, args []json.RawMessage) (any, bool)

// Gateway handles client events of the realtime chat protocol.
type Gateway struct {
	messages      repositories.MessageRepository
	chats         repositories.ChatRepository
	notifications repositories.NotificationRepository
	presence      Presence
	broadcaster   Broadcaster
	audit         *telemetry.AuditEmitter
	logger        *zap.Logger
	handlers      map[string]handlerFunc
}

// New constructs a Gateway.
func New(deps Deps) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		messages:      deps.Messages,
		chats:         deps.Chats,
		notifications: deps.Notifications,
		presence:      deps.Presence,
		broadcaster:   deps.Broadcaster,
		audit:         deps.Audit,
		logger:        logger.Named("gateway"),
	}
	g.handlers = map[string]handlerFunc{
		"register_user":      g.handleRegisterUser,
		"join_chat":          g.handleJoinChat,
		"leave_chat":         g.handleLeaveChat,
		"send_message":       g.handleSendMessage,
		"mark_messages_read": g.handleMarkMessagesRead,
		"typing":             g.handleTyping,
		"recall_message":     g.handleRecallMessage,
		"edit_message":       g.handleEditMessage,
		"send_reaction":      g.handleSendReaction,
		"call_user":          g.handleCallUser,
		"answer_call":        g.handleAnswerCall,
		"ice_candidate":      g.handleIceCandidate,
		"end_call":           g.handleEndCall,
	}
	return g
}

// Dispatch runs the handler for event. It returns the ack payload and whether
// the event produces one. Unknown events are ignored.
func (g *Gateway) Dispatch(ctx context.Context, s Socket, event string, args []json.RawMessage) (any, bool) {
	h, ok := g.handlers[event]
	if !ok {
		g.logger.Debug("unknown event", zap.String("event", event), zap.String("conn_id", s.ID()))
		return nil, false
	}
	observability.IncWSEvent("chat", event)
	defer observability.ObserveEvent(event, time.Now())

	ctx, span := otel.Tracer("chat-gateway/gateway").Start(context.WithoutCancel(ctx), "gateway."+event)
	defer span.End()
	span.SetAttributes(attribute.String("conn_id", s.ID()), attribute.Int("user_id", s.UserID()))

	return h(ctx, s, args)
}

// Disconnect releases the presence binding of a closed connection.
func (g *Gateway) Disconnect(ctx context.Context, s Socket) {
	userID := s.UserID()
	if userID == 0 {
		return
	}
	if err := g.presence.Unregister(context.WithoutCancel(ctx), userID, s.ID()); err != nil {
		g.logger.Warn("unregister on disconnect failed", zap.Int("user_id", userID), zap.String("conn_id", s.ID()), zap.Error(err))
	}
}

// NewStatusNotifier broadcasts presence transitions to every connection.
func NewStatusNotifier(b Broadcaster) presence.StatusNotifier {
	return func(ctx context.Context, change presence.StatusChange) {
		b.EmitAll(models.EventUserStatusChanged, models.UserStatusChanged{UserID: change.UserID, Status: change.Status})
		_ = observability.PublishEvent(ctx, observability.RoutingKeyPresenceEvents, observability.EventEnvelope{
			EventType: "presence_events",
			EventName: "user_" + change.Status,
			Payload:   map[string]any{"user_id": change.UserID, "status": change.Status},
		}, observability.BuildHeaders("", observability.TraceIDFromContext(ctx)))
	}
}

func (g *Gateway) handleRegisterUser(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	var raw models.FlexInt
	_ = decodeArg(args, 0, &raw)
	userID := raw.Int()
	if userID <= 0 {
		g.drop(ctx, "register_user", s, opErr("register_user", ErrInvalidParams, nil))
		return nil, false
	}
	if pinned := s.PinnedUserID(); pinned != 0 && pinned != userID {
		g.logger.Warn("register_user does not match verified token",
			zap.String("conn_id", s.ID()), zap.Int("token_user_id", pinned), zap.Int("user_id", userID))
		return nil, false
	}

	if prev := s.UserID(); prev != 0 && prev != userID {
		s.Leave(models.UserRoom(prev))
		if err := g.presence.Unregister(ctx, prev, s.ID()); err != nil {
			g.logger.Warn("unregister previous user failed", zap.Int("user_id", prev), zap.Error(err))
		}
	}

	s.BindUser(userID)
	s.Join(models.UserRoom(userID))
	if err := g.presence.Register(ctx, userID, s.ID()); err != nil {
		g.logger.Error("register user failed", zap.Int("user_id", userID), zap.String("conn_id", s.ID()), zap.Error(err))
		return nil, false
	}
	g.logger.Info("user registered", zap.Int("user_id", userID), zap.String("conn_id", s.ID()))
	return nil, false
}

func (g *Gateway) handleJoinChat(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	chatID, ok := g.chatArg(ctx, "join_chat", s, args)
	if ok {
		s.Join(models.ChatRoom(chatID))
	}
	return nil, false
}

func (g *Gateway) handleLeaveChat(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	chatID, ok := g.chatArg(ctx, "leave_chat", s, args)
	if ok {
		s.Leave(models.ChatRoom(chatID))
	}
	return nil, false
}

// chatArg reads a bare chat id argument.
func (g *Gateway) chatArg(ctx context.Context, op string, s Socket, args []json.RawMessage) (int, bool) {
	var raw models.FlexInt
	_ = decodeArg(args, 0, &raw)
	if raw.Int() <= 0 {
		g.drop(ctx, op, s, opErr(op, ErrInvalidParams, nil))
		return 0, false
	}
	return raw.Int(), true
}

func (g *Gateway) handleMarkMessagesRead(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	var req chatRequest
	if err := decodeArg(args, 0, &req); err != nil {
		g.drop(ctx, "mark_messages_read", s, opErr("mark_messages_read", ErrInvalidParams, err))
		return nil, false
	}
	reader := s.UserID()
	if reader == 0 {
		reader = req.UserID.Int()
	}
	chatID := req.ChatID.Int()
	if chatID <= 0 || reader <= 0 {
		g.drop(ctx, "mark_messages_read", s, opErr("mark_messages_read", ErrInvalidParams, nil))
		return nil, false
	}

	if err := g.messages.MarkMessagesRead(ctx, chatID, reader); err != nil {
		g.drop(ctx, "mark_messages_read", s, opErr("mark_messages_read", ErrPersistence, err))
		return nil, false
	}
	g.broadcaster.EmitToRoomExcept(models.ChatRoom(chatID), s.ID(), models.EventMessagesRead, models.MessagesRead{ChatID: chatID, ReadBy: reader})
	g.broadcaster.EmitToUser(reader, models.EventRecentChatRead, models.RecentChatRead{ChatID: chatID})
	return nil, false
}

func (g *Gateway) handleTyping(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	var req typingRequest
	if err := decodeArg(args, 0, &req); err != nil {
		g.drop(ctx, "typing", s, opErr("typing", ErrInvalidParams, err))
		return nil, false
	}
	chatID := req.ChatID.Int()
	if chatID <= 0 {
		g.drop(ctx, "typing", s, opErr("typing", ErrInvalidParams, nil))
		return nil, false
	}
	userID := s.UserID()
	if userID == 0 {
		userID = req.UserID.Int()
	}
	g.broadcaster.EmitToRoomExcept(models.ChatRoom(chatID), s.ID(), models.EventUserTyping,
		models.UserTyping{UserID: userID, IsTyping: truthy(req.IsTyping)})
	return nil, false
}

func (g *Gateway) handleRecallMessage(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	var req messageRequest
	if err := decodeArg(args, 0, &req); err != nil || req.MessageID.Int() <= 0 || req.ChatID.Int() <= 0 {
		g.drop(ctx, "recall_message", s, opErr("recall_message", ErrInvalidParams, err))
		return nil, false
	}
	messageID, chatID := req.MessageID.Int(), req.ChatID.Int()

	if err := g.messages.RecallMessage(ctx, messageID); err != nil {
		g.drop(ctx, "recall_message", s, opErr("recall_message", ErrPersistence, err))
		return nil, false
	}
	g.broadcaster.EmitToRoom(models.ChatRoom(chatID), models.EventMessageRecalled, models.MessageRecalled{MessageID: messageID})
	return nil, false
}

func (g *Gateway) handleEditMessage(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	var req messageRequest
	if err := decodeArg(args, 0, &req); err != nil || req.MessageID.Int() <= 0 || req.ChatID.Int() <= 0 || req.NewContent == nil {
		g.drop(ctx, "edit_message", s, opErr("edit_message", ErrInvalidParams, err))
		return nil, false
	}
	messageID, chatID, content := req.MessageID.Int(), req.ChatID.Int(), req.NewContent.String()

	if err := g.messages.EditMessage(ctx, messageID, content); err != nil {
		g.drop(ctx, "edit_message", s, opErr("edit_message", ErrPersistence, err))
		return nil, false
	}
	g.broadcaster.EmitToRoom(models.ChatRoom(chatID), models.EventMessageEdited, models.MessageEdited{MessageID: messageID, NewContent: content})
	return nil, false
}

func (g *Gateway) handleSendReaction(ctx context.Context, s Socket, args []json.RawMessage) (any, bool) {
	var req messageRequest
	if err := decodeArg(args, 0, &req); err != nil || req.MessageID.Int() <= 0 || req.ChatID.Int() <= 0 {
		g.drop(ctx, "send_reaction", s, opErr("send_reaction", ErrInvalidParams, err))
		return nil, false
	}
	g.broadcaster.EmitToRoom(models.ChatRoom(req.ChatID.Int()), models.EventMessageReacted,
		models.MessageReacted{MessageID: req.MessageID.Int(), Emoji: req.Emoji})
	return nil, false
}

// drop logs a failed event that has no ack to report through.
func (g *Gateway) drop(ctx context.Context, op string, s Socket, err error) {
	spanError(ctx, err)
	fields := []zap.Field{zap.String("event", op), zap.String("conn_id", s.ID()), zap.Int("user_id", s.UserID()), zap.Error(err)}
	if errors.Is(err, ErrPersistence) {
		g.logger.Error("event failed", fields...)
		g.audit.Error(ctx, op+" failed", err, "", s.UserID())
		return
	}
	g.logger.Warn("event dropped", fields...)
}

func spanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
