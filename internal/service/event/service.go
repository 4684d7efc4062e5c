// Package event publishes record-lifecycle events to the configured message
// broker. Publishing is fire-and-forget: a failed publish is logged and
// counted, never surfaced to the request that triggered it.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medledger/medledger-api/pkg/messaging"
	"github.com/medledger/medledger-api/pkg/metrics"
)

// Event types
const (
	TypeUserRegistered = "USER_REGISTERED"
	TypeRecordCreated  = "RECORD_CREATED"
	TypeRecordDeleted  = "RECORD_DELETED"
	TypeAccessGranted  = "ACCESS_GRANTED"
	TypeAccessRevoked  = "ACCESS_REVOKED"
)

// Channel is the pub/sub channel lifecycle events are published on.
const Channel = "medledger.events"

type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

type Service struct {
	broker  messaging.Broker
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewService creates the event publisher. A nil broker yields a no-op
// publisher, used when no Redis URL is configured.
func NewService(broker messaging.Broker, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		broker:  broker,
		logger:  logger.With().Str("component", "events").Logger(),
		metrics: m,
	}
}

func (s *Service) Publish(ctx context.Context, eventType string, payload interface{}) {
	if s.broker == nil {
		return
	}

	evt := &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}

	if err := s.broker.Publish(ctx, Channel, evt); err != nil {
		if s.metrics != nil {
			s.metrics.EventsFailed.Inc()
		}
		s.logger.Error().Err(err).Str("type", eventType).Msg("failed to publish event")
		return
	}
	if s.metrics != nil {
		s.metrics.EventsPublished.Inc()
	}
}
