package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aplus-bot/aplus-telegram-bot/internal/aggregator"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
)

// TotalsQuery represents the query string of a totals request
type TotalsQuery struct {
	Window        string `form:"window,default=today"`
	GroupBy       string `form:"group_by"` // Comma separated dimensions
	ChatID        string `form:"chat_id"`
	PaymentMethod string `form:"payment_method"`
}

// RecordsQuery represents the query string of a record listing request
type RecordsQuery struct {
	From          string `form:"from" binding:"required"`
	To            string `form:"to" binding:"required"`
	ChatID        string `form:"chat_id"`
	PaymentMethod string `form:"payment_method"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=50" binding:"min=1,max=500"`
}

// SenderRequest is the sender identity reported by the chat transport
type SenderRequest struct {
	ID          *int64 `json:"id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	IsBot       bool   `json:"is_bot"`
}

// SubmitEventRequest represents an inbound chat message
type SubmitEventRequest struct {
	Text       string        `json:"text" binding:"required"`
	ChatID     int64         `json:"chat_id" binding:"required"`
	Sender     SenderRequest `json:"sender"`
	OccurredAt *time.Time    `json:"occurred_at"`
	MessageID  string        `json:"message_id"`
}

// TotalsDTO represents exact sums in API responses
type TotalsDTO struct {
	USDCents int64  `json:"usd_cents"`
	USD      string `json:"usd"`
	Riel     int64  `json:"riel"`
	Count    int64  `json:"record_count"`
}

// GroupDTO represents one group of a totals report
type GroupDTO struct {
	ChatID        *int64  `json:"chat_id,omitempty"`
	PaymentMethod *string `json:"payment_method,omitempty"`
	SenderKind    *string `json:"sender_kind,omitempty"`
	TotalsDTO
}

// TotalsResponse represents a totals report in API responses
type TotalsResponse struct {
	Window  string     `json:"window"`
	From    string     `json:"from"`
	To      string     `json:"to"`
	GroupBy []string   `json:"group_by"`
	Total   TotalsDTO  `json:"total"`
	Groups  []GroupDTO `json:"groups"`
}

// RecordResponse represents an invoice record in API responses
type RecordResponse struct {
	Seq           int64  `json:"seq"`
	InvoiceID     string `json:"invoice_id,omitempty"`
	USDCents      int64  `json:"usd_cents"`
	USD           string `json:"usd"`
	Riel          int64  `json:"riel"`
	ChatID        int64  `json:"chat_id"`
	PaymentMethod string `json:"payment_method"`
	SenderKind    string `json:"sender_kind"`
	SenderID      int64  `json:"sender_id,omitempty"`
	SenderName    string `json:"sender_name,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// SubmitEventResponse acknowledges an accepted chat event
type SubmitEventResponse struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

func formatUSD(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func mapTotals(t aggregator.Totals) TotalsDTO {
	return TotalsDTO{
		USDCents: t.USDCents,
		USD:      formatUSD(t.USDCents),
		Riel:     t.Riel,
		Count:    t.Count,
	}
}

// mapReportToResponse only sets the group fields for dimensions that were grouped on
func mapReportToResponse(window string, report *aggregator.Report) TotalsResponse {
	resp := TotalsResponse{
		Window:  window,
		From:    report.From.String(),
		To:      report.To.String(),
		GroupBy: make([]string, 0, len(report.GroupBy)),
		Total:   mapTotals(report.Total),
		Groups:  make([]GroupDTO, 0, len(report.Groups)),
	}
	for _, d := range report.GroupBy {
		resp.GroupBy = append(resp.GroupBy, string(d))
	}

	for _, row := range report.Rows() {
		group := GroupDTO{TotalsDTO: mapTotals(row.Totals)}
		for _, d := range report.GroupBy {
			switch d {
			case aggregator.DimensionChatID:
				chatID := row.ChatID
				group.ChatID = &chatID
			case aggregator.DimensionPaymentMethod:
				method := row.PaymentMethod
				group.PaymentMethod = &method
			case aggregator.DimensionSenderKind:
				kind := string(row.SenderKind)
				group.SenderKind = &kind
			}
		}
		resp.Groups = append(resp.Groups, group)
	}
	return resp
}

func mapRecordToResponse(rec *invoice.Record) RecordResponse {
	return RecordResponse{
		Seq:           rec.Seq,
		InvoiceID:     rec.InvoiceID,
		USDCents:      rec.USDCents,
		USD:           formatUSD(rec.USDCents),
		Riel:          rec.Riel,
		ChatID:        rec.ChatID,
		PaymentMethod: rec.PaymentMethod,
		SenderKind:    string(rec.Sender.Kind),
		SenderID:      rec.Sender.UserID,
		SenderName:    rec.Sender.DisplayName,
		OccurredAt:    rec.OccurredAt.Format(time.RFC3339),
	}
}
