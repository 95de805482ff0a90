package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/messaging/producers"
)

// EventServiceImpl implements the EventService interface
type EventServiceImpl struct {
	producer producers.MessagePublisher
	logger   *slog.Logger
}

func NewEventService(logger *slog.Logger, producer producers.MessagePublisher) EventService {
	return &EventServiceImpl{
		producer: producer,
		logger:   logger,
	}
}

// SubmitEvent publishes the event keyed by chat so one chat's messages stay in order
func (s *EventServiceImpl) SubmitEvent(ctx context.Context, event *invoice.Event) (string, error) {
	key := strconv.FormatInt(event.ChatID, 10)
	if err := s.producer.Publish(ctx, key, event); err != nil {
		s.logger.Error("Failed to publish chat event",
			"chat_id", event.ChatID,
			"message_id", event.MessageID,
			"error", err,
		)
		return "", err
	}

	s.logger.Info("Chat event published",
		"chat_id", event.ChatID,
		"message_id", event.MessageID,
		"correlation_id", event.CorrelationID,
	)
	return key, nil
}
