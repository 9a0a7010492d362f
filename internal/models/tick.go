// Package models defines the domain models used across the application.
package models

import (
	"strconv"
	"time"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// TickDirection is the price movement since the previous trade.
type TickDirection string

const (
	ZeroPlusTick  TickDirection = "ZeroPlusTick"
	PlusTick      TickDirection = "PlusTick"
	ZeroMinusTick TickDirection = "ZeroMinusTick"
	MinusTick     TickDirection = "MinusTick"
)

// Valid reports whether d is one of the four known tick directions.
func (d TickDirection) Valid() bool {
	switch d {
	case ZeroPlusTick, PlusTick, ZeroMinusTick, MinusTick:
		return true
	}
	return false
}

// Tick represents one validated trade execution read from a daily archive.
// It is the canonical format handed to every storage backend.
type Tick struct {
	// Timestamp is the execution time in Unix milliseconds (e.g. 1443177265706).
	Timestamp int64 `json:"timestamp" parquet:"timestamp"`

	// Symbol is the contract or market (e.g. "XBTUSD").
	Symbol string `json:"symbol" parquet:"symbol"`

	// Side is the side of the taker.
	Side Side `json:"side" parquet:"side"`

	// Size is the contract amount.
	Size float64 `json:"size" parquet:"size"`

	// Price is the individual contract price.
	Price float64 `json:"price" parquet:"price"`

	TickDirection TickDirection `json:"tickDirection" parquet:"tick_direction"`

	// TradeID is the exchange match id, a canonical UUID string.
	TradeID string `json:"trdMatchID" parquet:"trd_match_id"`

	// GrossValue is the trade value in satoshis.
	GrossValue float64 `json:"grossValue" parquet:"gross_value"`

	// HomeNotional is the value in the first asset of the pair.
	HomeNotional float64 `json:"homeNotional" parquet:"home_notional"`

	// ForeignNotional is the value in the second asset of the pair.
	ForeignNotional float64 `json:"foreignNotional" parquet:"foreign_notional"`
}

// Time returns the tick timestamp as a UTC time.
func (t Tick) Time() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

// CSVHeader is the column order used by Record.
var CSVHeader = []string{
	"timestamp", "symbol", "side", "size", "price", "tickDirection",
	"trdMatchID", "grossValue", "homeNotional", "foreignNotional",
}

// Record renders the tick as CSV cells in CSVHeader order.
func (t Tick) Record() []string {
	return []string{
		strconv.FormatInt(t.Timestamp, 10),
		t.Symbol,
		string(t.Side),
		floatStr(t.Size),
		floatStr(t.Price),
		string(t.TickDirection),
		t.TradeID,
		floatStr(t.GrossValue),
		floatStr(t.HomeNotional),
		floatStr(t.ForeignNotional),
	}
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
