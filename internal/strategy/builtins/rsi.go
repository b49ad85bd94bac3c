package builtins

import (
	"context"
	"fmt"

	"quantflow/internal/domain"
	"quantflow/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSIReversal)(nil)

// RSIReversal is a mean-reversion strategy on the relative strength index:
// it buys when RSI drops below the oversold threshold and exits when RSI
// rises above the overbought threshold.
type RSIReversal struct {
	window       int
	oversold     float64
	overbought   float64
	positionSize float64
}

// NewRSIReversal creates an RSIReversal strategy. window must be positive and
// 0 <= oversold < overbought <= 100.
func NewRSIReversal(window int, oversold, overbought, positionSize float64) (*RSIReversal, error) {
	if window <= 0 {
		return nil, fmt.Errorf("rsi_window must be positive, got %d", window)
	}
	if oversold < 0 || overbought > 100 || oversold >= overbought {
		return nil, fmt.Errorf("thresholds must satisfy 0 <= oversold < overbought <= 100, got %v/%v", oversold, overbought)
	}
	if positionSize <= 0 || positionSize > 1 {
		return nil, fmt.Errorf("position_size must be in (0, 1], got %v", positionSize)
	}
	return &RSIReversal{
		window:       window,
		oversold:     oversold,
		overbought:   overbought,
		positionSize: positionSize,
	}, nil
}

// RSIFactory builds an RSIReversal from a parameter set. Recognised
// parameters: rsi_window (default 14), oversold (default 30), overbought
// (default 70), position_size (default 0.1).
func RSIFactory(params map[string]float64) (strategy.Strategy, error) {
	seen := make(map[string]bool)
	window := int(paramOr(params, seen, "rsi_window", 14))
	oversold := paramOr(params, seen, "oversold", 30)
	overbought := paramOr(params, seen, "overbought", 70)
	size := paramOr(params, seen, "position_size", 0.1)
	if err := rejectUnknown(params, seen); err != nil {
		return nil, err
	}
	return NewRSIReversal(window, oversold, overbought, size)
}

// Name returns "rsi-reversal".
func (s *RSIReversal) Name() string {
	return "rsi-reversal"
}

// GenerateSignals emits at most one signal per symbol based on the latest
// RSI reading.
func (s *RSIReversal) GenerateSignals(_ context.Context, history strategy.History, portfolio strategy.PortfolioView) ([]domain.Signal, error) {
	var signals []domain.Signal

	for _, symbol := range history.Symbols() {
		bars := history.Bars(symbol)
		if len(bars) <= s.window {
			continue
		}

		rsi := strategy.RSI(strategy.Closes(bars), s.window)
		cur := rsi[len(rsi)-1]
		last := bars[len(bars)-1]
		pos, held := portfolio.Position(symbol)

		switch {
		case cur < s.oversold && !held:
			signals = append(signals, domain.Signal{
				Symbol:       symbol,
				Action:       domain.ActionBuy,
				PositionSize: s.positionSize,
				Reason:       fmt.Sprintf("RSI(%d) %.1f below oversold %.1f", s.window, cur, s.oversold),
				Confidence:   0.6,
				Timestamp:    last.Timestamp,
			})
		case cur > s.overbought && held:
			signals = append(signals, domain.Signal{
				Symbol:     symbol,
				Action:     domain.ActionSell,
				Quantity:   pos.Quantity,
				Reason:     fmt.Sprintf("RSI(%d) %.1f above overbought %.1f", s.window, cur, s.overbought),
				Confidence: 0.6,
				Timestamp:  last.Timestamp,
			})
		}
	}

	return signals, nil
}
