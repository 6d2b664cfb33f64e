package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEventWithoutAck(t *testing.T) {
	p, err := DecodePacket([]byte(`2["join_chat",12]`))
	require.NoError(t, err)
	require.Equal(t, PacketEvent, p.Type)
	require.False(t, p.HasAck)
	require.Equal(t, defaultNamespace, p.Namespace)

	name, args, err := p.Event()
	require.NoError(t, err)
	require.Equal(t, "join_chat", name)
	require.Len(t, args, 1)
	require.JSONEq(t, `12`, string(args[0]))
}

func TestDecodeEventWithAck(t *testing.T) {
	p, err := DecodePacket([]byte(`217["send_message",{"chatId":3}]`))
	require.NoError(t, err)
	require.True(t, p.HasAck)
	require.Equal(t, 17, p.AckID)

	name, args, err := p.Event()
	require.NoError(t, err)
	require.Equal(t, "send_message", name)
	require.JSONEq(t, `{"chatId":3}`, string(args[0]))
}

func TestDecodeNamespace(t *testing.T) {
	p, err := DecodePacket([]byte(`2/admin,5["x"]`))
	require.NoError(t, err)
	require.Equal(t, "/admin", p.Namespace)
	require.Equal(t, 5, p.AckID)

	p, err = DecodePacket([]byte(`0/admin`))
	require.NoError(t, err)
	require.Equal(t, PacketConnect, p.Type)
	require.Equal(t, "/admin", p.Namespace)
}

func TestDecodeConnectAndDisconnect(t *testing.T) {
	p, err := DecodePacket([]byte(`0`))
	require.NoError(t, err)
	require.Equal(t, PacketConnect, p.Type)
	require.Nil(t, p.Data)

	p, err = DecodePacket([]byte(`0{"token":"abc"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"token":"abc"}`, string(p.Data))

	p, err = DecodePacket([]byte(`1`))
	require.NoError(t, err)
	require.Equal(t, PacketDisconnect, p.Type)
}

func TestDecodeBinaryAttachments(t *testing.T) {
	p, err := DecodePacket([]byte(`51-["upload",{"_placeholder":true,"num":0}]`))
	require.NoError(t, err)
	require.Equal(t, PacketBinaryEvent, p.Type)
	require.Equal(t, 1, p.Attachments)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{``, `9`, `x["a"]`, `2["a"`, `2{bad}`, `5["a"]`} {
		_, err := DecodePacket([]byte(raw))
		require.Error(t, err, raw)
	}
}

func TestEventRejectsNonEvents(t *testing.T) {
	for _, raw := range []string{`2[]`, `2[12,"a"]`, `2{"a":1}`, `2`} {
		p, err := DecodePacket([]byte(raw))
		require.NoError(t, err, raw)
		_, _, err = p.Event()
		require.Error(t, err, raw)
	}

	p, err := DecodePacket([]byte(`3[1]`))
	require.NoError(t, err)
	_, _, err = p.Event()
	require.ErrorIs(t, err, ErrNotEvent)
}

func TestEncodeEventRoundTrip(t *testing.T) {
	frame, err := EncodeEvent("user_typing", map[string]any{"userId": 4, "isTyping": true})
	require.NoError(t, err)
	require.Equal(t, eioMessage, frame[0])

	p, err := DecodePacket(frame[1:])
	require.NoError(t, err)
	name, args, err := p.Event()
	require.NoError(t, err)
	require.Equal(t, "user_typing", name)
	require.JSONEq(t, `{"userId":4,"isTyping":true}`, string(args[0]))
}

func TestEncodeEventWithoutPayload(t *testing.T) {
	frame, err := EncodeEvent("call_ended", nil)
	require.NoError(t, err)
	require.Equal(t, `42["call_ended"]`, string(frame))
}

func TestEncodeAck(t *testing.T) {
	frame, err := EncodeAck(9, map[string]any{"ok": true})
	require.NoError(t, err)
	require.Equal(t, `439[{"ok":true}]`, string(frame))
}

func TestEncodeConnectAndOpen(t *testing.T) {
	require.Equal(t, `40{"sid":"abc"}`, string(encodeConnect("abc")))
	require.Equal(t, `44/admin,{"message":"Invalid namespace"}`, string(encodeConnectError("/admin", "Invalid namespace")))

	frame := encodeOpen(openPayload{SID: "s1", PingInterval: 25000, PingTimeout: 20000, MaxPayload: 1000000})
	require.Equal(t, eioOpen, frame[0])
	var open map[string]any
	require.NoError(t, json.Unmarshal(frame[1:], &open))
	require.Equal(t, "s1", open["sid"])
	require.Equal(t, []any{}, open["upgrades"])
	require.EqualValues(t, 25000, open["pingInterval"])
}
