package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aplus-bot/aplus-telegram-bot/internal/api_gateway/middleware"
	"github.com/aplus-bot/aplus-telegram-bot/internal/api_gateway/service"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
)

// EventHandler handles inbound chat event webhooks
type EventHandler struct {
	eventService service.EventService
	logger       *slog.Logger
	now          func() time.Time
}

func NewEventHandler(logger *slog.Logger, eventService service.EventService) *EventHandler {
	return &EventHandler{
		eventService: eventService,
		logger:       logger,
		now:          time.Now,
	}
}

// Submit accepts a chat message for asynchronous ingestion
func (h *EventHandler) Submit(c *gin.Context) {
	var req SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	hasTimestamp := req.OccurredAt != nil && !req.OccurredAt.IsZero()
	// Without a message id the dedup key is derived from the timestamp, so a
	// retried request must carry the same one.
	if req.MessageID == "" && !hasTimestamp {
		RespondBadRequest(c, "occurred_at is required when message_id is absent")
		return
	}

	occurredAt := h.now().UTC()
	if hasTimestamp {
		occurredAt = *req.OccurredAt
	}

	event := &invoice.Event{
		Text:   req.Text,
		ChatID: req.ChatID,
		Sender: invoice.RawSender{
			ID:          req.Sender.ID,
			DisplayName: req.Sender.DisplayName,
			Username:    req.Sender.Username,
			IsBot:       req.Sender.IsBot,
		},
		OccurredAt:    occurredAt,
		MessageID:     req.MessageID,
		CorrelationID: middleware.GetCorrelationID(c),
	}

	key, err := h.eventService.SubmitEvent(c.Request.Context(), event)
	if err != nil {
		h.logger.Error("Failed to submit chat event", "chat_id", req.ChatID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondAccepted(c, SubmitEventResponse{Key: key, Status: "ACCEPTED"})
}
