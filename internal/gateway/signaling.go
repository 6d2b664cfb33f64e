package gateway

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"chat-gateway/internal/models"
)

// signal decodes a signaling payload from a registered caller. Anything else is
// dropped without a reply.
func (g *Gateway) signal(s Socket, event string, args []json.RawMessage) (signalRequest, bool) {
	if s.UserID() == 0 {
		g.logger.Debug("signaling from unregistered connection", zap.String("event", event), zap.String("conn_id", s.ID()))
		return signalRequest{}, false
	}
	var req signalRequest
	if err := decodeArg(args, 0, &req); err != nil || req.To.Int() <= 0 {
		g.logger.Debug("malformed signaling payload", zap.String("event", event), zap.String("conn_id", s.ID()))
		return signalRequest{}, false
	}
	return req, true
}

func (g *Gateway) handleCallUser(_ context.Context, s Socket, args []json.RawMessage) (any, bool) {
	req, ok := g.signal(s, "call_user", args)
	if !ok {
		return nil, false
	}
	g.broadcaster.EmitToUser(req.To.Int(), models.EventIncomingCall, models.IncomingCall{
		From:    s.UserID(),
		Offer:   req.Offer,
		IsVideo: truthy(req.IsVideo),
	})
	return nil, false
}

func (g *Gateway) handleAnswerCall(_ context.Context, s Socket, args []json.RawMessage) (any, bool) {
	req, ok := g.signal(s, "answer_call", args)
	if !ok {
		return nil, false
	}
	g.broadcaster.EmitToUser(req.To.Int(), models.EventCallAnswered, models.CallAnswered{Answer: req.Answer})
	return nil, false
}

func (g *Gateway) handleIceCandidate(_ context.Context, s Socket, args []json.RawMessage) (any, bool) {
	req, ok := g.signal(s, "ice_candidate", args)
	if !ok || !truthy(req.Candidate) {
		return nil, false
	}
	g.broadcaster.EmitToUser(req.To.Int(), models.EventIceCandidate, models.IceCandidate{Candidate: req.Candidate})
	return nil, false
}

func (g *Gateway) handleEndCall(_ context.Context, s Socket, args []json.RawMessage) (any, bool) {
	req, ok := g.signal(s, "end_call", args)
	if !ok {
		return nil, false
	}
	g.broadcaster.EmitToUser(req.To.Int(), models.EventCallEnded, nil)
	return nil, false
}
