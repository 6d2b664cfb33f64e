package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// Engine.IO v4 packet types, first byte of every websocket frame.
const (
	eioOpen    byte = '0'
	eioClose   byte = '1'
	eioPing    byte = '2'
	eioPong    byte = '3'
	eioMessage byte = '4'
	eioUpgrade byte = '5'
	eioNoop    byte = '6'
)

// PacketType is a Socket.IO v5 packet type.
type PacketType byte

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

const defaultNamespace = "/"

var (
	ErrEmptyFrame      = errors.New("empty frame")
	ErrMalformedPacket = errors.New("malformed socket.io packet")
	ErrNotEvent        = errors.New("packet is not an event")
)

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type        PacketType
	Namespace   string
	Attachments int
	AckID       int
	HasAck      bool
	Data        json.RawMessage
}

// DecodePacket parses the Socket.IO part of an Engine.IO message frame,
// i.e. everything after the leading '4'.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) == 0 {
		return Packet{}, ErrEmptyFrame
	}
	if b[0] < '0' || b[0] > '6' {
		return Packet{}, ErrMalformedPacket
	}
	p := Packet{Type: PacketType(b[0] - '0'), Namespace: defaultNamespace}
	i := 1

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		start := i
		for i < len(b) && isDigit(b[i]) {
			i++
		}
		if i == start || i >= len(b) || b[i] != '-' {
			return Packet{}, ErrMalformedPacket
		}
		p.Attachments, _ = strconv.Atoi(string(b[start:i]))
		i++
	}

	if i < len(b) && b[i] == '/' {
		end := bytes.IndexByte(b[i:], ',')
		if end < 0 {
			p.Namespace = string(b[i:])
			return p, nil
		}
		p.Namespace = string(b[i : i+end])
		i += end + 1
	}

	start := i
	for i < len(b) && isDigit(b[i]) {
		i++
	}
	if i > start {
		id, err := strconv.Atoi(string(b[start:i]))
		if err != nil {
			return Packet{}, ErrMalformedPacket
		}
		p.AckID, p.HasAck = id, true
	}

	if i < len(b) {
		data := b[i:]
		if !json.Valid(data) {
			return Packet{}, ErrMalformedPacket
		}
		p.Data = append(json.RawMessage(nil), data...)
	}
	return p, nil
}

// Event splits an event packet into its name and arguments.
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != PacketEvent {
		return "", nil, ErrNotEvent
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(p.Data, &parts); err != nil || len(parts) == 0 {
		return "", nil, ErrMalformedPacket
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil || name == "" {
		return "", nil, ErrMalformedPacket
	}
	return name, parts[1:], nil
}

// Encode renders the packet as a complete Engine.IO message frame.
func (p Packet) Encode() []byte {
	var b bytes.Buffer
	b.WriteByte(eioMessage)
	b.WriteByte('0' + byte(p.Type))
	if p.Namespace != "" && p.Namespace != defaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.HasAck {
		b.WriteString(strconv.Itoa(p.AckID))
	}
	b.Write(p.Data)
	return b.Bytes()
}

// EncodeEvent builds an event frame. A nil payload sends the bare event name.
func EncodeEvent(event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return Packet{Type: PacketEvent, Data: data}.Encode(), nil
}

// EncodeAck builds an ack frame for ackID carrying payload as its only argument.
func EncodeAck(ackID int, payload any) ([]byte, error) {
	args := []any{}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return Packet{Type: PacketAck, AckID: ackID, HasAck: true, Data: data}.Encode(), nil
}

func encodeConnect(sid string) []byte {
	data, _ := json.Marshal(map[string]string{"sid": sid})
	return Packet{Type: PacketConnect, Data: data}.Encode()
}

func encodeConnectError(namespace, message string) []byte {
	data, _ := json.Marshal(map[string]string{"message": message})
	return Packet{Type: PacketConnectError, Namespace: namespace, Data: data}.Encode()
}

type openPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

func encodeOpen(p openPayload) []byte {
	if p.Upgrades == nil {
		p.Upgrades = []string{}
	}
	data, _ := json.Marshal(p)
	return append([]byte{eioOpen}, data...)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
