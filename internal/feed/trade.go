package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Trade is one trade print decoded from the market-data stream. Symbol is the
// raw exchange spelling.
type Trade struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// streamEvent is the wire shape of a stream message. Trade events carry the
// pair (or sym), price p and unix-millisecond timestamp t.
type streamEvent struct {
	Ev      string    `json:"ev"`
	Pair    string    `json:"pair"`
	Sym     string    `json:"sym"`
	Price   flexFloat `json:"p"`
	TS      int64     `json:"t"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

// flexFloat accepts a JSON number or a quoted decimal string.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("price %q: %w", s, err)
		}
		f.Value, f.Set = v, true
		return nil
	}
	if err := json.Unmarshal(b, &f.Value); err != nil {
		return err
	}
	f.Set = true
	return nil
}

// decodeFrame splits a frame into its events. A frame is either one JSON
// object or an array of objects.
func decodeFrame(frame []byte) ([]streamEvent, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, fmt.Errorf("feed: empty frame")
	}
	if frame[0] == '[' {
		var events []streamEvent
		if err := json.Unmarshal(frame, &events); err != nil {
			return nil, fmt.Errorf("feed: decode frame array: %w", err)
		}
		return events, nil
	}
	var ev streamEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return nil, fmt.Errorf("feed: decode frame: %w", err)
	}
	return []streamEvent{ev}, nil
}

// trade converts a trade event. It reports false for events that are not
// trades or lack a symbol or a positive price. A zero timestamp is replaced
// by received.
func (ev streamEvent) trade(tradeEvent string, received time.Time) (Trade, bool) {
	if ev.Ev != tradeEvent {
		return Trade{}, false
	}
	sym := ev.Pair
	if sym == "" {
		sym = ev.Sym
	}
	if sym == "" || !ev.Price.Set || ev.Price.Value <= 0 {
		return Trade{}, false
	}
	ts := received
	if ev.TS > 0 {
		ts = time.UnixMilli(ev.TS)
	}
	return Trade{Symbol: sym, Price: ev.Price.Value, Timestamp: ts}, true
}
