package invoice

import (
	"strconv"
	"time"
)

// DefaultPaymentMethod is used when a message carries no payment method tag
const DefaultPaymentMethod = "Unknown"

// SenderKind classifies the origin of a chat message
type SenderKind string

const (
	SenderKindBot  SenderKind = "BOT"
	SenderKindUser SenderKind = "USER"
)

// Sender is the attributed origin of an invoice record.
// UserID and DisplayName are only meaningful for SenderKindUser.
type Sender struct {
	Kind        SenderKind `json:"kind" bson:"kind"`
	UserID      int64      `json:"user_id,omitempty" bson:"user_id,omitempty"`
	DisplayName string     `json:"display_name,omitempty" bson:"display_name,omitempty"`
}

// BotSender returns the sender value for automated messages
func BotSender() Sender {
	return Sender{Kind: SenderKindBot}
}

// UserSender returns the sender value for a human participant
func UserSender(id int64, name string) Sender {
	return Sender{Kind: SenderKindUser, UserID: id, DisplayName: name}
}

// IsBot reports whether the sender is automated
func (s Sender) IsBot() bool {
	return s.Kind == SenderKindBot
}

// Candidate is one invoice found in a message before attribution
type Candidate struct {
	InvoiceID     string
	USDCents      int64
	Riel          int64
	PaymentMethod string
}

// Record is one parsed monetary event stored in the ledger
type Record struct {
	Seq           int64     `json:"seq" bson:"seq"`
	DedupKey      string    `json:"dedup_key" bson:"dedup_key"`
	InvoiceID     string    `json:"invoice_id,omitempty" bson:"invoice_id,omitempty"`
	USDCents      int64     `json:"usd_cents" bson:"usd_cents"` // Stored in cents
	Riel          int64     `json:"riel" bson:"riel"`
	ChatID        int64     `json:"chat_id" bson:"chat_id"`
	Sender        Sender    `json:"sender" bson:"sender"`
	PaymentMethod string    `json:"payment_method" bson:"payment_method"`
	OccurredAt    time.Time `json:"occurred_at" bson:"occurred_at"`
}

// NewRecord builds a record from an extracted candidate. Seq is left at zero
// and is assigned by the ledger on append.
func NewRecord(c Candidate, chatID int64, sender Sender, occurredAt time.Time, dedupKey string) *Record {
	method := c.PaymentMethod
	if method == "" {
		method = DefaultPaymentMethod
	}
	return &Record{
		DedupKey:      dedupKey,
		InvoiceID:     c.InvoiceID,
		USDCents:      c.USDCents,
		Riel:          c.Riel,
		ChatID:        chatID,
		Sender:        sender,
		PaymentMethod: method,
		OccurredAt:    occurredAt,
	}
}

// Validate checks the record invariants required before it can be stored
func (r *Record) Validate() error {
	switch {
	case r.USDCents < 0:
		return &ValidationError{Field: "usd_amount", Reason: "must not be negative: " + strconv.FormatInt(r.USDCents, 10)}
	case r.Riel < 0:
		return &ValidationError{Field: "riel_amount", Reason: "must not be negative: " + strconv.FormatInt(r.Riel, 10)}
	case r.USDCents == 0 && r.Riel == 0:
		return &ValidationError{Field: "amount", Reason: "at least one amount must be positive"}
	case r.ChatID == 0:
		return &ValidationError{Field: "chat_id", Reason: "is required"}
	case r.OccurredAt.IsZero():
		return &ValidationError{Field: "occurred_at", Reason: "is required"}
	case r.DedupKey == "":
		return &ValidationError{Field: "dedup_key", Reason: "is required"}
	}
	if r.Sender.Kind != SenderKindBot && r.Sender.Kind != SenderKindUser {
		return &ValidationError{Field: "sender", Reason: "unknown kind " + string(r.Sender.Kind)}
	}
	return nil
}
