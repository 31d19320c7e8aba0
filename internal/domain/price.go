package domain

import "time"

// PriceUpdate is a single trade print for a normalized symbol. The ingestor
// emits one per trade event; the risk evaluator consumes them.
type PriceUpdate struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}
