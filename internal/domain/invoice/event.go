package invoice

import "time"

// RawSender is the sender identity as reported by the chat transport
type RawSender struct {
	ID          *int64 `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Username    string `json:"username,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

// Event is a text message delivered by the chat transport
type Event struct {
	Text          string    `json:"text"`
	ChatID        int64     `json:"chat_id"`
	Sender        RawSender `json:"sender"`
	OccurredAt    time.Time `json:"occurred_at"`
	MessageID     string    `json:"message_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}
