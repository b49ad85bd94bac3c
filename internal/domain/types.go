// Package domain defines the core data types shared across the quantflow
// backtesting platform: market bars, trading signals, executed trades,
// positions, and portfolio snapshots.
package domain

import "time"

// Bar is a single OHLCV sample for a symbol at a point in time. Bars are
// immutable once ingested; the backtest package enforces ordering.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// SignalAction is the action a strategy requests for a symbol.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// Signal is the output of a strategy for a single symbol at a single step.
// It is consumed by the engine in the same step it is produced.
//
// Quantity is the requested number of shares; when zero, the engine sizes the
// order from PositionSize, a fraction of current total portfolio value.
type Signal struct {
	Symbol       string
	Action       SignalAction
	Quantity     int64
	PositionSize float64
	Reason       string
	Confidence   float64
	Timestamp    time.Time
}

// Side is the direction of an executed fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is an executed fill. Price already includes slippage; Value is
// quantity times price; Commission has been deducted from cash separately.
// Trades are append-only and never mutated after creation.
type Trade struct {
	Symbol     string
	Side       Side
	Quantity   int64
	Price      float64
	Value      float64
	Commission float64
	Timestamp  time.Time
	Strategy   string
	Reason     string
}

// Position is the holding in a single symbol. Quantity is negative for short
// positions. AvgPrice is the volume-weighted average entry price.
type Position struct {
	Symbol   string
	Quantity int64
	AvgPrice float64
}

// MarketValue returns the position value marked at the given price.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}

// UnrealizedPnL returns the open profit or loss marked at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AvgPrice) * float64(p.Quantity)
}

// PortfolioSnapshot is the point-in-time portfolio state recorded once per
// replay step, marked at that step's closing prices. The snapshot series is
// the input to performance metrics.
//
// Invariant: Cash + PositionsValue == TotalValue at every step.
type PortfolioSnapshot struct {
	Timestamp      time.Time
	TotalValue     float64
	Cash           float64
	PositionsValue float64
	NumPositions   int
}
