package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/aplus-bot/aplus-telegram-bot/internal/aggregator"
	"github.com/aplus-bot/aplus-telegram-bot/internal/api_gateway/service"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
)

// LedgerHandler handles HTTP requests for ledger reads
type LedgerHandler struct {
	ledgerService service.LedgerService
	logger        *slog.Logger
}

func NewLedgerHandler(logger *slog.Logger, ledgerService service.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// GetTotals aggregates the ledger over a window, optionally grouped and filtered
func (h *LedgerHandler) GetTotals(c *gin.Context) {
	var query TotalsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	window, err := aggregator.ParseWindow(query.Window)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	var dims []string
	if query.GroupBy != "" {
		dims = strings.Split(query.GroupBy, ",")
		for i := range dims {
			dims[i] = strings.TrimSpace(dims[i])
		}
	}
	groupBy, err := aggregator.ParseDimensions(dims)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	chatID, ok := parseChatID(c, query.ChatID)
	if !ok {
		return
	}

	report, err := h.ledgerService.GetTotals(c.Request.Context(), aggregator.Request{
		Window:        window,
		GroupBy:       groupBy,
		ChatID:        chatID,
		PaymentMethod: optionalString(query.PaymentMethod),
	})
	if err != nil {
		if errors.Is(err, aggregator.ErrInvalidWindow) {
			RespondBadRequest(c, err.Error())
			return
		}
		if errors.Is(err, aggregator.ErrTotalsOverflow) {
			RespondWithError(c, http.StatusUnprocessableEntity, "TOTALS_OVERFLOW", "Totals for this window exceed the representable range")
			return
		}
		h.logger.Error("Failed to get totals", "window", query.Window, "error", err)
		respondStoreError(c, err)
		return
	}

	RespondOK(c, mapReportToResponse(window.String(), report))
}

// ListRecords returns the records of an inclusive date range, paginated in sequence order
func (h *LedgerHandler) ListRecords(c *gin.Context) {
	var query RecordsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	from, err := civil.ParseDate(query.From)
	if err != nil {
		RespondBadRequest(c, "Invalid from date, expected YYYY-MM-DD")
		return
	}
	to, err := civil.ParseDate(query.To)
	if err != nil {
		RespondBadRequest(c, "Invalid to date, expected YYYY-MM-DD")
		return
	}

	chatID, ok := parseChatID(c, query.ChatID)
	if !ok {
		return
	}

	records, err := h.ledgerService.ListRecords(c.Request.Context(), ledger.RangeQuery{
		From:          from,
		To:            to,
		ChatID:        chatID,
		PaymentMethod: optionalString(query.PaymentMethod),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidRange) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to list records", "from", query.From, "to", query.To, "error", err)
		respondStoreError(c, err)
		return
	}

	start := (pagination.Page - 1) * pagination.PerPage
	end := start + pagination.PerPage
	if start > len(records) {
		start = len(records)
	}
	if end > len(records) {
		end = len(records)
	}

	page := make([]RecordResponse, 0, end-start)
	for _, rec := range records[start:end] {
		page = append(page, mapRecordToResponse(rec))
	}

	RespondWithPaginatedData(c, http.StatusOK, page, pagination.Page, pagination.PerPage, len(records))
}

func parseChatID(c *gin.Context, raw string) (*int64, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid chat_id")
		return nil, false
	}
	return &id, true
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// respondStoreError maps an unavailable ledger to 503 and anything else to 500
func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, ledger.StoreError{}) {
		RespondWithError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "The ledger store is unavailable")
		return
	}
	RespondInternalError(c)
}
