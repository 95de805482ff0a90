package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/event_processor/service"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/messaging/producers"
)

// ChatEventHandler handles inbound chat event messages from Kafka
type ChatEventHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

func NewChatEventHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *ChatEventHandler {
	return &ChatEventHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage decodes one chat event and runs it through ingestion.
// A non-nil return leaves the offset uncommitted so the event is redelivered.
func (h *ChatEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event invoice.Event
	if err := json.Unmarshal(value, &event); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal chat event from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		// Redelivery cannot fix a malformed payload, so it is never held
		if h.producer == nil {
			h.logger.Warn("No DLQ configured, dropping undecodable chat event", "message_key", string(key))
			return nil
		}

		dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
		dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason)
		switch {
		case dlqErr == nil:
			return nil
		case errors.Is(dlqErr, producers.ErrDLQDisabled):
			h.logger.Warn("No DLQ configured, dropping undecodable chat event", "message_key", string(key))
			return nil
		}

		h.logger.Error("Failed to publish message to DLQ after unmarshal error",
			"dlq_error", dlqErr,
			"original_error", err,
			"message_key", string(key),
		)
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	logger := h.logger.With("chat_id", event.ChatID)
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	logger.Debug("Received chat event for processing", "message_id", event.MessageID)

	result, err := h.processingService.ProcessEvent(ctx, &event)
	if err != nil {
		logger.Error("Failed to process chat event",
			"message_id", event.MessageID,
			"error", err,
		)
		return fmt.Errorf("processing chat event for chat %d failed: %w", event.ChatID, err)
	}

	switch result.State {
	case service.StateAppended:
		logger.Info("Chat event recorded",
			"dedup_key", result.DedupKey,
			"records", len(result.Records),
			"duplicates", result.Duplicates,
		)
	default:
		logger.Debug("Chat event not recorded",
			"dedup_key", result.DedupKey,
			"reason", result.Reason,
		)
	}
	return nil
}
