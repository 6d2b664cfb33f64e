package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-gateway/internal/gateway"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/observability"
)

// Dispatcher handles decoded client events for a connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, s gateway.Socket, event string, args []json.RawMessage) (any, bool)
	Disconnect(ctx context.Context, s gateway.Socket)
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (int, error)
}

// Options tunes the Engine.IO session.
type Options struct {
	PingInterval   time.Duration
	PingTimeout    time.Duration
	MaxPayload     int64
	SendBuffer     int
	AllowedOrigins []string
}

// Server accepts Socket.IO clients over websocket.
type Server struct {
	hub        *Hub
	dispatcher Dispatcher
	verifier   TokenVerifier
	opts       Options
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewServer constructs a Server. verifier may be nil, in which case tokens are ignored.
func NewServer(hub *Hub, dispatcher Dispatcher, verifier TokenVerifier, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		hub:        hub,
		dispatcher: dispatcher,
		verifier:   verifier,
		opts:       opts,
		logger:     logger.Named("ws"),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Handle upgrades the request and runs the connection until it closes.
func (s *Server) Handle(c *gin.Context) {
	if v := c.Query("EIO"); v != "" && v != "4" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 5, "message": "Unsupported protocol version"})
		return
	}
	if t := c.Query("transport"); t != "" && t != "websocket" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 0, "message": "Transport unknown"})
		return
	}

	ctx, span := otel.Tracer("chat-gateway/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	pinned := 0
	if token := handshakeToken(c); token != "" && s.verifier != nil {
		userID, err := s.verifier.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		pinned = userID
	}

	wsConn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		UserID:      pinned,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	conn := newConn(uuid.NewString(), s.hub, wsConn, s.opts.SendBuffer, info)
	s.hub.add(conn)

	observability.IncWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_connect")
	_ = observability.PublishEvent(ctx, observability.RoutingKeyWSEvents, wsEnvelope("ws_connect", conn.Info(), 0, ""),
		observability.BuildHeaders(requestID, traceID))

	conn.enqueue(encodeOpen(openPayload{
		SID:          conn.id,
		PingInterval: s.opts.PingInterval.Milliseconds(),
		PingTimeout:  s.opts.PingTimeout.Milliseconds(),
		MaxPayload:   s.opts.MaxPayload,
	}))

	go conn.writePump(s.opts.PingInterval)
	go s.readLoop(context.WithoutCancel(ctx), conn)
}

func (s *Server) readLoop(ctx context.Context, conn *Conn) {
	var closeReason string
	defer func() {
		s.dispatcher.Disconnect(ctx, conn)
		s.hub.remove(conn)
		observability.DecWSActive(wsKind)
		observability.IncWSEvent(wsKind, "ws_disconnect")
		info := conn.Info()
		_ = observability.PublishEvent(ctx, observability.RoutingKeyWSEvents,
			wsEnvelope("ws_disconnect", info, time.Since(info.ConnectedAt), closeReason),
			observability.BuildHeaders(info.RequestID, info.TraceID))
		conn.Close()
	}()

	if s.opts.MaxPayload > 0 {
		conn.ws.SetReadLimit(s.opts.MaxPayload)
	}
	deadline := s.opts.PingInterval + s.opts.PingTimeout

	for {
		_ = conn.ws.SetReadDeadline(time.Now().Add(deadline))
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.hub.publishWSError(conn, closeReason)
			}
			return
		}
		if msgType != websocket.TextMessage {
			s.logger.Debug("binary frame ignored", zap.String("conn_id", conn.id))
			continue
		}
		if !s.handleFrame(ctx, conn, data) {
			closeReason = "client disconnect"
			return
		}
	}
}

// handleFrame processes one Engine.IO frame. It returns false when the session should end.
func (s *Server) handleFrame(ctx context.Context, conn *Conn, data []byte) bool {
	if len(data) == 0 {
		return true
	}
	switch data[0] {
	case eioPong, eioNoop, eioUpgrade:
		return true
	case eioPing:
		conn.enqueue(append([]byte{eioPong}, data[1:]...))
		return true
	case eioClose:
		return false
	case eioMessage:
	default:
		s.logger.Debug("unknown engine.io packet", zap.String("conn_id", conn.id), zap.ByteString("type", data[:1]))
		return true
	}

	pkt, err := DecodePacket(data[1:])
	if err != nil {
		s.logger.Warn("malformed packet", zap.String("conn_id", conn.id), zap.Error(err))
		return true
	}

	switch pkt.Type {
	case PacketConnect:
		s.handleConnect(conn, pkt)
	case PacketDisconnect:
		return pkt.Namespace != defaultNamespace
	case PacketEvent:
		s.handleEvent(ctx, conn, pkt)
	case PacketBinaryEvent, PacketBinaryAck:
		s.logger.Warn("binary packets are not supported", zap.String("conn_id", conn.id))
	default:
		s.logger.Debug("packet ignored", zap.String("conn_id", conn.id), zap.Int("type", int(pkt.Type)))
	}
	return true
}

func (s *Server) handleConnect(conn *Conn, pkt Packet) {
	if pkt.Namespace != defaultNamespace {
		conn.enqueue(encodeConnectError(pkt.Namespace, "Invalid namespace"))
		return
	}

	var auth struct {
		Token string `json:"token"`
	}
	if len(pkt.Data) > 0 {
		_ = json.Unmarshal(pkt.Data, &auth)
	}
	if auth.Token != "" && s.verifier != nil {
		userID, err := s.verifier.Verify(strings.TrimPrefix(auth.Token, "Bearer "))
		if err != nil {
			conn.enqueue(encodeConnectError("", "invalid token"))
			return
		}
		conn.pin(userID)
	}

	conn.markConnected()
	conn.enqueue(encodeConnect(conn.id))
}

func (s *Server) handleEvent(ctx context.Context, conn *Conn, pkt Packet) {
	if pkt.Namespace != defaultNamespace {
		return
	}
	if !conn.isConnected() {
		s.logger.Debug("event before connect ignored", zap.String("conn_id", conn.id))
		return
	}
	name, args, err := pkt.Event()
	if err != nil {
		s.logger.Warn("malformed event", zap.String("conn_id", conn.id), zap.Error(err))
		return
	}

	ack, hasAck := s.dispatcher.Dispatch(ctx, conn, name, args)
	if !pkt.HasAck || !hasAck {
		return
	}
	frame, err := EncodeAck(pkt.AckID, ack)
	if err != nil {
		s.logger.Error("encode ack failed", zap.String("event", name), zap.Error(err))
		return
	}
	conn.enqueue(frame)
}

func handshakeToken(c *gin.Context) string {
	if token, ok := middleware.BearerToken(c.GetHeader("Authorization")); ok {
		return token
	}
	return c.Query("token")
}
