package service

import "github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"

// State is a step of the ingestion pipeline
type State string

const (
	StateReceived   State = "RECEIVED"
	StateExtracted  State = "EXTRACTED"
	StateClassified State = "CLASSIFIED"
	StateAppended   State = "APPENDED"
	StateRejected   State = "REJECTED"
)

// RejectReason explains a terminal Rejected state
type RejectReason string

const (
	RejectNoMatch         RejectReason = "NO_MATCH"
	RejectParseError      RejectReason = "PARSE_ERROR"
	RejectValidationError RejectReason = "VALIDATION_ERROR"
	RejectStoreError      RejectReason = "STORE_ERROR"
)

// Result is the terminal outcome of processing one event
type Result struct {
	State      State
	Reason     RejectReason // Set when State is StateRejected
	DedupKey   string
	Records    []*invoice.Record
	Duplicates int // Records whose dedup key was already committed
}

func rejected(reason RejectReason, dedupKey string) *Result {
	return &Result{State: StateRejected, Reason: reason, DedupKey: dedupKey}
}
