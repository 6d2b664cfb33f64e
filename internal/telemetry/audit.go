package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"chat-gateway/internal/observability"
)

const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

// Publisher is the broker side of the audit emitter.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AuditEmitter publishes audit log entries for failed or notable operations.
// A nil emitter is valid and drops everything.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger.Named("audit"),
	}
}

// Emit publishes one audit entry. A zero userID is omitted.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID int) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Payload:       AuditPayload{Level: level, Text: text},
	}
	if userID != 0 {
		uid := strconv.Itoa(userID)
		envelope.UserID = &uid
	}

	headers := observability.BuildHeaders(requestID, observability.TraceIDFromContext(ctx))
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		e.logger.Warn("audit publish failed", zap.String("text", text), zap.Error(err))
	}
}

// Error emits an ERROR entry carrying err's message.
func (e *AuditEmitter) Error(ctx context.Context, text string, err error, requestID string, userID int) {
	if err != nil {
		text += ": " + err.Error()
	}
	e.Emit(ctx, LevelError, text, requestID, userID)
}
