package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/mocks"
	"chat-gateway/internal/models"
	"chat-gateway/internal/presence"
)

var _ Broadcaster = (*mocks.BroadcasterMock)(nil)

type fakeSocket struct {
	id     string
	userID int
	pinned int
	rooms  map[string]bool
}

func newFakeSocket(id string) *fakeSocket {
	return &fakeSocket{id: id, rooms: map[string]bool{}}
}

func (s *fakeSocket) ID() string          { return s.id }
func (s *fakeSocket) UserID() int         { return s.userID }
func (s *fakeSocket) BindUser(userID int) { s.userID = userID }
func (s *fakeSocket) PinnedUserID() int   { return s.pinned }
func (s *fakeSocket) Join(room string)    { s.rooms[room] = true }
func (s *fakeSocket) Leave(room string)   { delete(s.rooms, room) }

type fixture struct {
	gw            *Gateway
	messages      *mocks.MessageRepositoryMock
	chats         *mocks.ChatRepositoryMock
	notifications *mocks.NotificationRepositoryMock
	broadcaster   *mocks.BroadcasterMock
	registry      *presence.Registry
}

func newFixture() *fixture {
	f := &fixture{
		messages:      new(mocks.MessageRepositoryMock),
		chats:         new(mocks.ChatRepositoryMock),
		notifications: new(mocks.NotificationRepositoryMock),
		broadcaster:   new(mocks.BroadcasterMock),
	}
	f.registry = presence.NewRegistry(presence.NewMemoryStore(), NewStatusNotifier(f.broadcaster), nil)
	f.gw = New(Deps{
		Messages:      f.messages,
		Chats:         f.chats,
		Notifications: f.notifications,
		Presence:      f.registry,
		Broadcaster:   f.broadcaster,
	})
	return f
}

func args(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func (f *fixture) dispatch(t *testing.T, s Socket, event string, values ...any) (any, bool) {
	return f.gw.Dispatch(context.Background(), s, event, args(t, values...))
}

func TestRegisterUserAnnouncesOnlineOnce(t *testing.T) {
	f := newFixture()
	a, b := newFakeSocket("a"), newFakeSocket("b")

	f.dispatch(t, a, "register_user", 7)
	f.dispatch(t, b, "register_user", "7")

	require.Equal(t, 7, a.UserID())
	require.True(t, a.rooms["user_7"])
	require.True(t, b.rooms["user_7"])
	status := f.broadcaster.Named(models.EventUserStatusChanged)
	require.Len(t, status, 1)
	require.Equal(t, models.UserStatusChanged{UserID: 7, Status: presence.StatusOnline}, status[0].Payload)

	f.gw.Disconnect(context.Background(), a)
	require.Len(t, f.broadcaster.Named(models.EventUserStatusChanged), 1)
	require.True(t, f.registry.IsOnline(context.Background(), 7))

	f.gw.Disconnect(context.Background(), b)
	status = f.broadcaster.Named(models.EventUserStatusChanged)
	require.Len(t, status, 2)
	require.Equal(t, models.UserStatusChanged{UserID: 7, Status: presence.StatusOffline}, status[1].Payload)
	require.False(t, f.registry.IsOnline(context.Background(), 7))
}

func TestRegisterUserIgnoresInvalidID(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")

	f.dispatch(t, s, "register_user", "abc")
	f.dispatch(t, s, "register_user", 0)

	require.Zero(t, s.UserID())
	require.Empty(t, f.broadcaster.Emissions())
}

func TestRegisterUserRebindReleasesPreviousUser(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")

	f.dispatch(t, s, "register_user", 1)
	f.dispatch(t, s, "register_user", 2)

	require.Equal(t, 2, s.UserID())
	require.False(t, s.rooms["user_1"])
	require.True(t, s.rooms["user_2"])
	require.False(t, f.registry.IsOnline(context.Background(), 1))
	require.True(t, f.registry.IsOnline(context.Background(), 2))
}

func TestRegisterUserRespectsPinnedToken(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")
	s.pinned = 5

	f.dispatch(t, s, "register_user", 6)
	require.Zero(t, s.UserID())

	f.dispatch(t, s, "register_user", 5)
	require.Equal(t, 5, s.UserID())
}

func TestJoinAndLeaveChat(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")

	f.dispatch(t, s, "join_chat", "12")
	require.True(t, s.rooms["chat_12"])

	f.dispatch(t, s, "leave_chat", 12)
	require.False(t, s.rooms["chat_12"])

	f.dispatch(t, s, "join_chat", "nope")
	require.Empty(t, s.rooms)
}

func TestSendMessageRequiresRegistration(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")

	ack, ok := f.dispatch(t, s, "send_message", map[string]any{"chatId": 3, "content": "hi"})

	require.True(t, ok)
	require.Equal(t, Ack{Error: codeNotRegistered}, ack)
	f.messages.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	require.Empty(t, f.broadcaster.Emissions())
}

func TestSendMessageRejectsInvalidChat(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")
	s.userID = 1

	for _, payload := range []any{map[string]any{"content": "hi"}, map[string]any{"chatId": "x"}, nil} {
		ack, ok := f.dispatch(t, s, "send_message", payload)
		require.True(t, ok)
		require.Equal(t, Ack{Error: codeInvalidParams}, ack)
	}
	f.messages.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestSendMessagePersistenceFailure(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")
	s.userID = 1

	f.messages.On("SendMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	ack, ok := f.dispatch(t, s, "send_message", map[string]any{"chatId": 3, "content": "hi"})

	require.True(t, ok)
	require.Equal(t, Ack{Error: codeSendMessageFailed}, ack)
	require.Empty(t, f.broadcaster.Emissions())
	f.chats.AssertNotCalled(t, "GetChatUsers", mock.Anything, mock.Anything)
	f.messages.AssertExpectations(t)
}

func sentMessage() models.Message {
	return models.Message{
		ID:          100,
		ChatID:      3,
		SenderID:    1,
		Content:     "hello there",
		Status:      models.MessageStatusSent,
		MessageType: models.MessageTypeText,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSendMessageBroadcastsAndFansOut(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")
	s.userID = 1
	msg := sentMessage()

	f.messages.On("SendMessage", mock.Anything, models.SendMessageInput{
		ChatID:      3,
		SenderID:    1,
		Content:     "hello there",
		MessageType: models.MessageTypeText,
	}).Return(msg, nil).Once()
	f.chats.On("GetChatUsers", mock.Anything, 3).Return([]models.ChatUser{{UserID: 1}, {UserID: 2}, {UserID: 4}}, nil).Once()
	for _, uid := range []int{2, 4} {
		f.notifications.On("CreateMessageNotification", mock.Anything, models.MessageNotificationInput{
			UserID: uid, SenderID: 1, ChatID: 3, Content: "hello there",
		}).Return(models.Notification{ID: uid}, nil).Once()
		f.notifications.On("GetUnreadCount", mock.Anything, uid).Return(uid*10, nil).Once()
	}

	ack, ok := f.dispatch(t, s, "send_message", map[string]any{"chatId": "3", "content": "hello there", "senderId": 99})

	require.True(t, ok)
	require.Equal(t, Ack{OK: true, Message: &msg}, ack)

	emissions := f.broadcaster.Emissions()
	require.NotEmpty(t, emissions)
	require.Equal(t, models.EventReceiveMessage, emissions[0].Event)
	require.Equal(t, "chat_3", emissions[0].Target)
	require.Len(t, f.broadcaster.Named(models.EventReceiveMessage), 1)

	recent := f.broadcaster.Named(models.EventRecentChatUpdated)
	require.Len(t, recent, 3)
	incs := map[string]int{}
	for _, e := range recent {
		incs[e.Target] = e.Payload.(models.RecentChatUpdated).UnreadInc
	}
	require.Equal(t, map[string]int{"user_1": 0, "user_2": 1, "user_4": 1}, incs)

	notes := f.broadcaster.Named(models.EventNewNotification)
	require.Len(t, notes, 2)
	for _, e := range notes {
		require.NotEqual(t, "user_1", e.Target)
		require.Equal(t, models.NewNotification{Type: "message", SenderID: 1, ChatID: 3, Content: "hello there"}, e.Payload)
	}

	counts := map[string]any{}
	for _, e := range f.broadcaster.Named(models.EventUnreadCount) {
		counts[e.Target] = e.Payload
	}
	require.Equal(t, map[string]any{"user_2": 20, "user_4": 40}, counts)

	f.messages.AssertExpectations(t)
	f.chats.AssertExpectations(t)
	f.notifications.AssertExpectations(t)
}

func TestSendMessageNotificationFailureIsIsolated(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")
	s.userID = 1
	msg := sentMessage()

	f.messages.On("SendMessage", mock.Anything, mock.Anything).Return(msg, nil).Once()
	f.chats.On("GetChatUsers", mock.Anything, 3).Return([]models.ChatUser{{UserID: 1}, {UserID: 2}, {UserID: 4}}, nil).Once()
	f.notifications.On("CreateMessageNotification", mock.Anything, mock.MatchedBy(func(in models.MessageNotificationInput) bool {
		return in.UserID == 2
	})).Return(nil, assert.AnError).Once()
	f.notifications.On("CreateMessageNotification", mock.Anything, mock.MatchedBy(func(in models.MessageNotificationInput) bool {
		return in.UserID == 4
	})).Return(models.Notification{ID: 1}, nil).Once()
	f.notifications.On("GetUnreadCount", mock.Anything, 4).Return(1, nil).Once()

	ack, ok := f.dispatch(t, s, "send_message", map[string]any{"chatId": 3, "content": "hello there"})

	require.True(t, ok)
	require.True(t, ack.(Ack).OK)
	notes := f.broadcaster.Named(models.EventNewNotification)
	require.Len(t, notes, 1)
	require.Equal(t, "user_4", notes[0].Target)
	require.Len(t, f.broadcaster.Named(models.EventUnreadCount), 1)
	f.notifications.AssertNotCalled(t, "GetUnreadCount", mock.Anything, 2)
	f.notifications.AssertExpectations(t)
}

func TestSendMessageMembersLookupFailureStillAcks(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")
	s.userID = 1
	msg := sentMessage()

	f.messages.On("SendMessage", mock.Anything, mock.Anything).Return(msg, nil).Once()
	f.chats.On("GetChatUsers", mock.Anything, 3).Return(nil, assert.AnError).Once()

	ack, ok := f.dispatch(t, s, "send_message", map[string]any{"chatId": 3, "content": "x"})

	require.True(t, ok)
	require.True(t, ack.(Ack).OK)
	require.Len(t, f.broadcaster.Emissions(), 1)
}

func TestSendMessageBuildsReplyInput(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("a")
	s.userID = 1

	f.messages.On("SendMessage", mock.Anything, mock.MatchedBy(func(in models.SendMessageInput) bool {
		return in.ReplyToID != nil && *in.ReplyToID == 9 &&
			in.ReplySender != nil && *in.ReplySender == "bob" &&
			in.MessageType == models.MessageTypeImage &&
			in.MediaURL != nil && *in.MediaURL == "http://x/y.png" &&
			in.SenderID == 1
	})).Return(models.Message{ID: 1, ChatID: 3, SenderID: 1, MessageType: models.MessageTypeImage}, nil).Once()
	f.chats.On("GetChatUsers", mock.Anything, 3).Return([]models.ChatUser{{UserID: 1}}, nil).Once()

	ack, _ := f.dispatch(t, s, "send_message", map[string]any{
		"chatId":       3,
		"message_type": "image",
		"media_url":    "http://x/y.png",
		"reply_to_id":  "9",
		"reply_sender": "bob",
	})

	require.True(t, ack.(Ack).OK)
	f.messages.AssertExpectations(t)
	f.notifications.AssertNotCalled(t, "CreateMessageNotification", mock.Anything, mock.Anything)
}

func TestSendMessageChatListPreviewUsesSummary(t *testing.T) {
	envelope := `{"reply_to":9,"reply_content":"earlier","reply_type":"text","reply_sender":"bob","message":"sure thing"}`
	cases := map[string]struct {
		msg  models.Message
		want string
	}{
		"image": {
			msg:  models.Message{ID: 1, ChatID: 3, SenderID: 1, MessageType: models.MessageTypeImage, Content: "https://cdn/x.png"},
			want: summaryImage,
		},
		"voice": {
			msg:  models.Message{ID: 2, ChatID: 3, SenderID: 1, MessageType: "audio", Content: "https://cdn/x.ogg"},
			want: summaryVoice,
		},
		"reply": {
			msg:  models.Message{ID: 3, ChatID: 3, SenderID: 1, MessageType: models.MessageTypeText, Content: envelope},
			want: "sure thing",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			s := newFakeSocket("a")
			s.userID = 1

			f.messages.On("SendMessage", mock.Anything, mock.Anything).Return(tc.msg, nil).Once()
			f.chats.On("GetChatUsers", mock.Anything, 3).Return([]models.ChatUser{{UserID: 1}, {UserID: 2}}, nil).Once()
			f.notifications.On("CreateMessageNotification", mock.Anything, mock.Anything).Return(models.Notification{ID: 1}, nil).Once()
			f.notifications.On("GetUnreadCount", mock.Anything, 2).Return(1, nil).Once()

			ack, _ := f.dispatch(t, s, "send_message", map[string]any{"chatId": 3, "content": "x"})
			require.True(t, ack.(Ack).OK)

			recent := f.broadcaster.Named(models.EventRecentChatUpdated)
			require.Len(t, recent, 2)
			for _, e := range recent {
				require.Equal(t, tc.want, e.Payload.(models.RecentChatUpdated).LastMessage, e.Target)
			}
			notes := f.broadcaster.Named(models.EventNewNotification)
			require.Len(t, notes, 1)
			require.Equal(t, tc.want, notes[0].Payload.(models.NewNotification).Content)
		})
	}
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("á", 60)
	require.Equal(t, strings.Repeat("á", 50), Summarize(models.Message{MessageType: "text", Content: long}))
	require.Equal(t, "short", Summarize(models.Message{MessageType: "text", Content: "short"}))
	require.Equal(t, summaryImage, Summarize(models.Message{MessageType: "image", Content: "ignored"}))
	require.Equal(t, summaryVoice, Summarize(models.Message{MessageType: "audio"}))
	require.Equal(t, summaryVoice, Summarize(models.Message{MessageType: "file"}))

	envelope := `{"reply_to":4,"reply_content":"q","reply_type":"text","reply_sender":"b","message":"inner text"}`
	require.Equal(t, "inner text", Summarize(models.Message{MessageType: "text", Content: envelope}))
	require.Equal(t, `{"not":"reply"}`, Summarize(models.Message{MessageType: "text", Content: `{"not":"reply"}`}))
}

func TestMarkMessagesRead(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("conn-1")
	s.userID = 2

	f.messages.On("MarkMessagesRead", mock.Anything, 3, 2).Return(nil).Once()

	f.dispatch(t, s, "mark_messages_read", map[string]any{"chatId": 3, "userId": 2})

	read := f.broadcaster.Named(models.EventMessagesRead)
	require.Len(t, read, 1)
	require.Equal(t, "chat_3", read[0].Target)
	require.Equal(t, "conn-1", read[0].Except)
	require.Equal(t, models.MessagesRead{ChatID: 3, ReadBy: 2}, read[0].Payload)

	recent := f.broadcaster.Named(models.EventRecentChatRead)
	require.Len(t, recent, 1)
	require.Equal(t, "user_2", recent[0].Target)
	f.messages.AssertExpectations(t)
}

func TestMarkMessagesReadFailureEmitsNothing(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("conn-1")

	f.messages.On("MarkMessagesRead", mock.Anything, 3, 2).Return(assert.AnError).Once()

	f.dispatch(t, s, "mark_messages_read", map[string]any{"chatId": 3, "userId": 2})

	require.Empty(t, f.broadcaster.Emissions())
	f.messages.AssertExpectations(t)
}

func TestTypingRelaysToOthers(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("conn-1")

	f.dispatch(t, s, "typing", map[string]any{"chatId": 3, "userId": 2, "isTyping": 1})

	typing := f.broadcaster.Named(models.EventUserTyping)
	require.Len(t, typing, 1)
	require.Equal(t, "conn-1", typing[0].Except)
	require.Equal(t, models.UserTyping{UserID: 2, IsTyping: true}, typing[0].Payload)

	f.dispatch(t, s, "typing", map[string]any{"chatId": 3, "userId": 2})
	typing = f.broadcaster.Named(models.EventUserTyping)
	require.Equal(t, models.UserTyping{UserID: 2, IsTyping: false}, typing[1].Payload)
}

func TestRecallAndEditMessage(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("conn-1")

	f.messages.On("RecallMessage", mock.Anything, 5).Return(nil).Once()
	f.messages.On("EditMessage", mock.Anything, 6, "fixed").Return(nil).Once()

	f.dispatch(t, s, "recall_message", map[string]any{"messageId": 5, "chatId": 3})
	f.dispatch(t, s, "edit_message", map[string]any{"messageId": 6, "chatId": 3, "newContent": "fixed"})
	f.dispatch(t, s, "edit_message", map[string]any{"messageId": 6, "chatId": 3})

	recalled := f.broadcaster.Named(models.EventMessageRecalled)
	require.Len(t, recalled, 1)
	require.Equal(t, models.MessageRecalled{MessageID: 5}, recalled[0].Payload)
	edited := f.broadcaster.Named(models.EventMessageEdited)
	require.Len(t, edited, 1)
	require.Equal(t, models.MessageEdited{MessageID: 6, NewContent: "fixed"}, edited[0].Payload)
	f.messages.AssertExpectations(t)
}

func TestSendReaction(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("conn-1")

	f.dispatch(t, s, "send_reaction", map[string]any{"messageId": 5, "chatId": 3, "emoji": "👍"})

	reacted := f.broadcaster.Named(models.EventMessageReacted)
	require.Len(t, reacted, 1)
	require.Equal(t, "chat_3", reacted[0].Target)
	payload := reacted[0].Payload.(models.MessageReacted)
	require.Equal(t, 5, payload.MessageID)
	require.JSONEq(t, `"👍"`, string(payload.Emoji))
}

func TestSignalingRelays(t *testing.T) {
	f := newFixture()
	s := newFakeSocket("conn-1")
	s.userID = 1

	f.dispatch(t, s, "call_user", map[string]any{"to": "2", "offer": map[string]any{"sdp": "x"}, "isVideo": true})
	f.dispatch(t, s, "answer_call", map[string]any{"to": 2, "answer": map[string]any{"sdp": "y"}})
	f.dispatch(t, s, "ice_candidate", map[string]any{"to": 2, "candidate": map[string]any{"c": 1}})
	f.dispatch(t, s, "end_call", map[string]any{"to": 2})

	emissions := f.broadcaster.Emissions()
	require.Len(t, emissions, 4)
	for _, e := range emissions {
		require.Equal(t, "user_2", e.Target)
	}
	call := emissions[0].Payload.(models.IncomingCall)
	require.Equal(t, models.EventIncomingCall, emissions[0].Event)
	require.Equal(t, 1, call.From)
	require.True(t, call.IsVideo)
	require.JSONEq(t, `{"sdp":"x"}`, string(call.Offer))
	require.Equal(t, models.EventCallAnswered, emissions[1].Event)
	require.Equal(t, models.EventIceCandidate, emissions[2].Event)
	require.Equal(t, models.EventCallEnded, emissions[3].Event)
	require.Nil(t, emissions[3].Payload)
}

func TestSignalingDropsInvalid(t *testing.T) {
	f := newFixture()
	anon := newFakeSocket("anon")
	s := newFakeSocket("conn-1")
	s.userID = 1

	f.dispatch(t, anon, "call_user", map[string]any{"to": 2})
	f.dispatch(t, s, "call_user", map[string]any{"offer": "x"})
	f.dispatch(t, s, "end_call", map[string]any{"to": "abc"})
	f.dispatch(t, s, "ice_candidate", map[string]any{"to": 2})
	f.dispatch(t, s, "ice_candidate", map[string]any{"to": 2, "candidate": nil})
	f.dispatch(t, s, "end_call", "not an object")

	require.Empty(t, f.broadcaster.Emissions())
}

func TestUnknownEventIsIgnored(t *testing.T) {
	f := newFixture()
	ack, ok := f.dispatch(t, newFakeSocket("a"), "no_such_event", 1)
	require.False(t, ok)
	require.Nil(t, ack)
}

func TestErrorTaxonomy(t *testing.T) {
	err := opErr("send_message", ErrPersistence, assert.AnError)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, assert.AnError)
	require.NotErrorIs(t, err, ErrNotification)
	require.Contains(t, err.Error(), "send_message")

	require.ErrorIs(t, opErr("typing", ErrInvalidParams, nil), ErrInvalidParams)
}
