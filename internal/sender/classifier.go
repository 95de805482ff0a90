// Package sender attributes chat messages to the bot itself or to a human user.
package sender

import (
	"strconv"
	"strings"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
)

// BotSentinelID is the reserved sender id some transports use for automated messages
const BotSentinelID int64 = 0

// Classify maps the transport's sender identity to a Bot or User sender.
// A sender is a bot when the transport reports no identity, flags it as
// automated, or reports the sentinel id.
func Classify(raw invoice.RawSender) invoice.Sender {
	if raw.ID == nil || raw.IsBot || *raw.ID == BotSentinelID {
		return invoice.BotSender()
	}
	return invoice.UserSender(*raw.ID, displayName(raw))
}

func displayName(raw invoice.RawSender) string {
	if name := strings.TrimSpace(raw.DisplayName); name != "" {
		return name
	}
	if username := strings.TrimSpace(raw.Username); username != "" {
		return username
	}
	return "User_" + strconv.FormatInt(*raw.ID, 10)
}
