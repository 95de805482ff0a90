// Package extractor turns free-text chat messages into invoice candidates.
//
// A message is recognised by a fixed template:
//
//	🧾 invoice 1042
//	💵 total : $12.50 | R. 51,000
//	💳 payment : ABA
//
// Every invoice marker yields one candidate; all candidates of a message share
// the amounts of its single totals line. Extract is a pure function and safe for
// concurrent use.
package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

var (
	invoicePattern = regexp.MustCompile(`(?i)\binvoice[^\S\n]*(?:#|no\.?|:)?[^\S\n]*(\d+)`)
	totalsPattern  = regexp.MustCompile(`(?i)\btotal[^\S\n]*:[^\S\n]*([^\n]*)`)
	methodPattern  = regexp.MustCompile(`(?im)^[^\S\n]*(?:💳[^\S\n]*)?(?:payment(?:[^\S\n]+method)?|paid[^\S\n]+by|method)[^\S\n]*:[^\S\n]*([^\n]*?)[^\S\n]*$`)

	usdPattern        = regexp.MustCompile(`\$[^\S\n]*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	rielPrefixPattern = regexp.MustCompile(`(?:\bR\.?|៛)[^\S\n]*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	rielSuffixPattern = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)[^\S\n]*៛`)
)

// maxCents and maxRiel bound single amounts so that integer sums cannot overflow in practice
var maxCents = decimal.NewFromInt(1_000_000_000_000)

const maxRiel int64 = 100_000_000_000_000

// Extract returns the invoice candidates found in text in order of appearance.
// Text without a totals marker yields no candidates and no error. A totals
// marker with an unreadable payload yields *invoice.ParseError, and a malformed
// amount yields *invoice.ValidationError; in both cases no candidates are returned.
func Extract(text string) ([]invoice.Candidate, error) {
	totals := totalsPattern.FindStringSubmatch(text)
	if totals == nil {
		return nil, nil
	}

	usdCents, riel, err := parseTotals(totals[1])
	if err != nil {
		switch e := err.(type) {
		case *invoice.ParseError:
			e.Text = text
		case *invoice.ValidationError:
			e.Text = text
		}
		return nil, err
	}

	method := PaymentMethod(text)

	ids := invoicePattern.FindAllStringSubmatch(text, -1)
	if len(ids) == 0 {
		return []invoice.Candidate{{
			USDCents:      usdCents,
			Riel:          riel,
			PaymentMethod: method,
		}}, nil
	}

	candidates := make([]invoice.Candidate, 0, len(ids))
	for _, m := range ids {
		candidates = append(candidates, invoice.Candidate{
			InvoiceID:     m[1],
			USDCents:      usdCents,
			Riel:          riel,
			PaymentMethod: method,
		})
	}
	return candidates, nil
}

// PaymentMethod returns the payment method tagged in text, or
// invoice.DefaultPaymentMethod when the text carries none
func PaymentMethod(text string) string {
	for _, m := range methodPattern.FindAllStringSubmatch(text, -1) {
		if label := strings.TrimSpace(m[1]); label != "" {
			return label
		}
	}
	return invoice.DefaultPaymentMethod
}

func parseTotals(payload string) (int64, int64, error) {
	usdMatch := usdPattern.FindStringSubmatch(payload)
	rielMatch := rielPrefixPattern.FindStringSubmatch(payload)
	if rielMatch == nil {
		rielMatch = rielSuffixPattern.FindStringSubmatch(payload)
	}
	if usdMatch == nil && rielMatch == nil {
		return 0, 0, &invoice.ParseError{Reason: "totals line has no readable amount: " + strconv.Quote(payload)}
	}

	var usdCents, riel int64
	var err error
	if usdMatch != nil {
		if usdCents, err = ParseUSDCents(usdMatch[1]); err != nil {
			return 0, 0, err
		}
	}
	if rielMatch != nil {
		if riel, err = ParseRiel(rielMatch[1]); err != nil {
			return 0, 0, err
		}
	}

	if usdCents == 0 && riel == 0 {
		return 0, 0, &invoice.ValidationError{Field: "amount", Reason: "both amounts are zero"}
	}
	return usdCents, riel, nil
}

// ParseUSDCents converts a dollar amount with optional grouping separators
// into integer cents, rejecting more than two fractional digits
func ParseUSDCents(s string) (int64, error) {
	raw := strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, &invoice.ValidationError{Field: "usd_amount", Reason: "not a number: " + strconv.Quote(s)}
	}
	if d.IsNegative() {
		return 0, &invoice.ValidationError{Field: "usd_amount", Reason: "must not be negative: " + strconv.Quote(s)}
	}
	if d.Exponent() < -2 {
		return 0, &invoice.ValidationError{Field: "usd_amount", Reason: "more than two decimal places: " + strconv.Quote(s)}
	}
	cents := d.Shift(2)
	if cents.GreaterThan(maxCents) {
		return 0, &invoice.ValidationError{Field: "usd_amount", Reason: "out of range: " + strconv.Quote(s)}
	}
	return cents.IntPart(), nil
}

// ParseRiel converts a Riel amount with optional grouping separators into
// whole units; Riel has no subunit so any fractional part is rejected
func ParseRiel(s string) (int64, error) {
	raw := strings.ReplaceAll(s, ",", "")
	if strings.Contains(raw, ".") {
		return 0, &invoice.ValidationError{Field: "riel_amount", Reason: "fractional riel: " + strconv.Quote(s)}
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v > maxRiel {
		return 0, &invoice.ValidationError{Field: "riel_amount", Reason: "out of range: " + strconv.Quote(s)}
	}
	return v, nil
}
