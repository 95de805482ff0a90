package service

import (
	"context"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
)

// ProcessingService runs one inbound chat event through the ingestion pipeline
type ProcessingService interface {
	ProcessEvent(ctx context.Context, event *invoice.Event) (*Result, error)
}

// ExtractFunc finds invoice candidates in message text
type ExtractFunc func(text string) ([]invoice.Candidate, error)

// ClassifyFunc attributes a message to a bot or a user
type ClassifyFunc func(raw invoice.RawSender) invoice.Sender
