package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/riskengine/internal/risk"
	"github.com/alanyoungcy/riskengine/internal/symbol"
)

// PriceHandler exposes the in-memory last-price table.
type PriceHandler struct {
	prices  *risk.PriceTable
	symbols *symbol.Table
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices *risk.PriceTable, symbols *symbol.Table) *PriceHandler {
	return &PriceHandler{prices: prices, symbols: symbols}
}

type priceResponse struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// GetPrice returns the last traded price for a symbol in any spelling the
// symbol table understands.
// GET /api/prices/{symbol}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	sym := h.symbols.Normalize(r.PathValue("symbol"))
	q, ok := h.prices.Get(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "price unavailable for "+sym)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Symbol: sym, Price: q.Price, Timestamp: q.Timestamp})
}

// ListPrices returns every known price sorted by symbol.
// GET /api/prices
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	all := h.prices.All()
	out := make([]priceResponse, 0, len(all))
	for sym, q := range all {
		out = append(out, priceResponse{Symbol: sym, Price: q.Price, Timestamp: q.Timestamp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	writeJSON(w, http.StatusOK, map[string]any{"prices": out})
}
