package handler

import (
	"net/http"

	"github.com/alanyoungcy/riskengine/internal/domain"
	"github.com/alanyoungcy/riskengine/internal/risk"
)

// RiskHandler exposes the cached risk state for operators.
type RiskHandler struct {
	state  *risk.State
	prices *risk.PriceTable
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(state *risk.State, prices *risk.PriceTable) *RiskHandler {
	return &RiskHandler{state: state, prices: prices}
}

// Summary reports how many positions and accounts are being watched.
// GET /api/risk/summary
func (h *RiskHandler) Summary(w http.ResponseWriter, r *http.Request) {
	positions, accounts := h.state.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"open_positions":   positions,
		"tracked_accounts": accounts,
		"priced_symbols":   len(h.prices.All()),
	})
}

type positionView struct {
	ID               string  `json:"id"`
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	EntryPrice       float64 `json:"entry_price"`
	Quantity         float64 `json:"quantity"`
	Leverage         float64 `json:"leverage"`
	MarkPrice        float64 `json:"mark_price"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	LiquidationPrice float64 `json:"liquidation_price"`
}

// AccountHealth marks an account's cached positions at the last known prices.
// GET /api/accounts/{id}/health
func (h *RiskHandler) AccountHealth(w http.ResponseWriter, r *http.Request) {
	acct, entries, ok := h.state.Account(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "account not tracked")
		return
	}

	positions := make([]domain.Position, len(entries))
	keys := make(map[string]string, len(entries))
	views := make([]positionView, len(entries))
	for i, e := range entries {
		positions[i] = e.Position
		keys[e.Position.ID] = e.Key
		mark, ok := h.prices.Price(e.Key)
		if !ok {
			mark = e.Position.EntryPrice
		}
		views[i] = positionView{
			ID:               e.Position.ID,
			Symbol:           e.Key,
			Side:             string(e.Position.Side),
			EntryPrice:       e.Position.EntryPrice,
			Quantity:         e.Position.Quantity,
			Leverage:         e.Position.EffectiveLeverage(),
			MarkPrice:        mark,
			UnrealizedPnL:    e.Position.PnL(mark),
			LiquidationPrice: e.Position.LiquidationPrice(),
		}
	}
	health := acct.Health(positions, func(p domain.Position) string { return keys[p.ID] }, h.prices.Price)

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":           acct.ID,
		"status":               acct.Status,
		"balance":              acct.Balance,
		"initial_balance":      acct.InitialBalance,
		"unrealized_pnl":       health.UnrealizedPnL,
		"equity":               health.Equity,
		"drawdown_pct":         health.DrawdownPct,
		"max_drawdown_pct":     acct.Rules.MaxDrawdownPct,
		"daily_loss_limit_pct": acct.Rules.DailyLossLimitPct,
		"breach":               acct.Breach(health),
		"positions":            views,
	})
}
