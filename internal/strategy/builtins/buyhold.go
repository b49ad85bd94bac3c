package builtins

import (
	"context"
	"fmt"

	"quantflow/internal/domain"
	"quantflow/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BuyHold)(nil)

// BuyHold enters each symbol on its first bar and never exits. Useful as a
// benchmark against the tuned strategies.
type BuyHold struct {
	positionSize float64
}

// NewBuyHold creates a BuyHold strategy committing positionSize of portfolio
// value per symbol.
func NewBuyHold(positionSize float64) (*BuyHold, error) {
	if positionSize <= 0 || positionSize > 1 {
		return nil, fmt.Errorf("position_size must be in (0, 1], got %v", positionSize)
	}
	return &BuyHold{positionSize: positionSize}, nil
}

// BuyHoldFactory builds a BuyHold from a parameter set. Recognised
// parameters: position_size (default 0.1).
func BuyHoldFactory(params map[string]float64) (strategy.Strategy, error) {
	seen := make(map[string]bool)
	size := paramOr(params, seen, "position_size", 0.1)
	if err := rejectUnknown(params, seen); err != nil {
		return nil, err
	}
	return NewBuyHold(size)
}

// Name returns "buy-hold".
func (s *BuyHold) Name() string {
	return "buy-hold"
}

// GenerateSignals buys each symbol once, on the first step where it has no
// position.
func (s *BuyHold) GenerateSignals(_ context.Context, history strategy.History, portfolio strategy.PortfolioView) ([]domain.Signal, error) {
	var signals []domain.Signal

	for _, symbol := range history.Symbols() {
		if _, held := portfolio.Position(symbol); held {
			continue
		}
		bars := history.Bars(symbol)
		if len(bars) == 0 {
			continue
		}
		last := bars[len(bars)-1]
		signals = append(signals, domain.Signal{
			Symbol:       symbol,
			Action:       domain.ActionBuy,
			PositionSize: s.positionSize,
			Reason:       "initial buy-and-hold entry",
			Confidence:   1,
			Timestamp:    last.Timestamp,
		})
	}

	return signals, nil
}

// DefaultRegistry returns a Registry with every builtin strategy registered.
func DefaultRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register("sma-cross", SMACrossFactory)
	r.Register("rsi-reversal", RSIFactory)
	r.Register("buy-hold", BuyHoldFactory)
	return r
}
