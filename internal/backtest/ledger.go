package backtest

import (
	"sort"
	"time"

	"quantflow/internal/domain"
)

// Tolerance for cash comparisons.
const epsilon = 1e-9

// Ledger tracks cash, positions, executed trades, and the snapshot series
// for a single backtest run. Each run owns its own Ledger and mutates it
// from exactly one goroutine; parallel sweeps give every worker a fresh
// instance, so no locking is needed here.
//
// Ledger implements strategy.PortfolioView.
type Ledger struct {
	initialCapital float64
	cash           float64
	realizedPnL    float64
	positions      map[string]domain.Position
	marks          map[string]float64 // latest close per symbol
	trades         []domain.Trade
	snapshots      []domain.PortfolioSnapshot
}

// NewLedger creates a ledger holding the full initial capital as cash.
func NewLedger(initialCapital float64) *Ledger {
	return &Ledger{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]domain.Position),
		marks:          make(map[string]float64),
	}
}

// Cash returns currently uninvested capital.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// RealizedPnL returns cumulative profit and loss from closed quantity.
func (l *Ledger) RealizedPnL() float64 {
	return l.realizedPnL
}

// Position returns the holding for a symbol, and whether one exists.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

// Positions returns copies of all open positions, sorted by symbol.
func (l *Ledger) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Mark records the latest observed close for a symbol; subsequent valuations
// use it until the next mark.
func (l *Ledger) Mark(symbol string, price float64) {
	l.marks[symbol] = price
}

// PositionsValue returns the sum of all position values at the latest marks.
func (l *Ledger) PositionsValue() float64 {
	var total float64
	for sym, p := range l.positions {
		total += p.MarketValue(l.marks[sym])
	}
	return total
}

// TotalValue returns cash plus all position values at the latest marks.
func (l *Ledger) TotalValue() float64 {
	return l.cash + l.PositionsValue()
}

// ApplyFill atomically records an executed trade: the trade record, the
// position update, and the cash movement happen together, so no partial
// state is ever observable. The caller has already sized and clipped the
// fill; price includes slippage.
func (l *Ledger) ApplyFill(symbol string, side domain.Side, quantity int64, price, commission float64, at time.Time, strategyName, reason string) {
	value := float64(quantity) * price

	signed := quantity
	if side == domain.SideSell {
		signed = -quantity
		l.cash += value - commission
	} else {
		l.cash -= value + commission
	}

	pos := l.positions[symbol]
	newQty := pos.Quantity + signed

	switch {
	case pos.Quantity == 0 || (pos.Quantity > 0) == (signed > 0):
		// Opening or adding: volume-weight the cost basis.
		if newQty != 0 {
			pos.AvgPrice = (pos.AvgPrice*float64(abs64(pos.Quantity)) + price*float64(abs64(signed))) / float64(abs64(newQty))
		}
	case abs64(signed) <= abs64(pos.Quantity):
		// Reducing toward zero: basis unchanged, PnL realized on the closed
		// quantity.
		l.realizedPnL += (price - pos.AvgPrice) * float64(abs64(signed)) * direction(pos.Quantity)
	default:
		// Crossing through zero: close the old position, open the remainder
		// at the fill price.
		l.realizedPnL += (price - pos.AvgPrice) * float64(abs64(pos.Quantity)) * direction(pos.Quantity)
		pos.AvgPrice = price
	}

	pos.Symbol = symbol
	pos.Quantity = newQty
	if newQty == 0 {
		delete(l.positions, symbol)
	} else {
		l.positions[symbol] = pos
	}

	l.trades = append(l.trades, domain.Trade{
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Value:      value,
		Commission: commission,
		Timestamp:  at,
		Strategy:   strategyName,
		Reason:     reason,
	})
}

// RecordSnapshot appends the portfolio state at the given step timestamp,
// valued at the latest marks.
func (l *Ledger) RecordSnapshot(at time.Time) {
	pv := l.PositionsValue()
	l.snapshots = append(l.snapshots, domain.PortfolioSnapshot{
		Timestamp:      at,
		TotalValue:     l.cash + pv,
		Cash:           l.cash,
		PositionsValue: pv,
		NumPositions:   len(l.positions),
	})
}

// Trades returns the accumulated trade list.
func (l *Ledger) Trades() []domain.Trade {
	return l.trades
}

// Snapshots returns the per-step snapshot series.
func (l *Ledger) Snapshots() []domain.PortfolioSnapshot {
	return l.snapshots
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// direction returns +1 for a long position, -1 for a short.
func direction(qty int64) float64 {
	if qty < 0 {
		return -1
	}
	return 1
}
