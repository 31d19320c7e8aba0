package domain

import (
	"context"
	"time"
)

// Event names published to notification channels.
const (
	EventPriceUpdate     = "price_update"
	EventLiquidation     = "liquidation_alert"
	EventChallengeFailed = "challenge_failed"
)

// TickerChannel is the public channel carrying price updates for symbol.
func TickerChannel(symbol string) string {
	return "ticker-" + symbol
}

// UserChannel is the private channel of a platform user.
func UserChannel(userID string) string {
	return "private-user-" + userID
}

// Envelope is the JSON body published on a notification channel.
type Envelope struct {
	Event string    `json:"event"`
	Data  any       `json:"data"`
	TS    time.Time `json:"ts"`
}

// Publisher delivers events to subscribers of a named channel. Delivery is
// fire-and-forget; no acknowledgment is consumed.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// PriceUpdatePayload is published on ticker channels.
type PriceUpdatePayload struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// LiquidationPayload is published on the owner's private channel.
type LiquidationPayload struct {
	PositionID string  `json:"positionId"`
	Symbol     string  `json:"symbol"`
	ClosePrice float64 `json:"closePrice"`
	PnL        float64 `json:"pnl"`
	Reason     string  `json:"reason"`
}

// ChallengeFailedPayload is published on the owner's private channel.
type ChallengeFailedPayload struct {
	AccountID string `json:"accountId"`
	Reason    string `json:"reason"`
}
