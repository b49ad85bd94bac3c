// Package builtins provides the strategy implementations that ship with the
// quantflow platform.
package builtins

import (
	"context"
	"fmt"

	"quantflow/internal/domain"
	"quantflow/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It opens a
// long position when the short-period SMA crosses above the long-period SMA
// and closes it when the short SMA crosses back below.
type SMACross struct {
	shortWindow  int
	longWindow   int
	positionSize float64
}

// NewSMACross creates an SMACross strategy. shortWindow must be a positive
// integer strictly less than longWindow; positionSize is the fraction of
// portfolio value committed per entry, in (0, 1].
func NewSMACross(shortWindow, longWindow int, positionSize float64) (*SMACross, error) {
	if shortWindow <= 0 {
		return nil, fmt.Errorf("short_window must be positive, got %d", shortWindow)
	}
	if shortWindow >= longWindow {
		return nil, fmt.Errorf("short_window (%d) must be less than long_window (%d)", shortWindow, longWindow)
	}
	if positionSize <= 0 || positionSize > 1 {
		return nil, fmt.Errorf("position_size must be in (0, 1], got %v", positionSize)
	}
	return &SMACross{
		shortWindow:  shortWindow,
		longWindow:   longWindow,
		positionSize: positionSize,
	}, nil
}

// SMACrossFactory builds an SMACross from a parameter set. Recognised parameters:
// short_window (default 10), long_window (default 20), position_size
// (default 0.1).
func SMACrossFactory(params map[string]float64) (strategy.Strategy, error) {
	short, long, size, err := readCommonParams(params, 10, 20, 0.1)
	if err != nil {
		return nil, err
	}
	return NewSMACross(short, long, size)
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// GenerateSignals emits at most one signal per symbol based on the most
// recent SMA crossover.
func (s *SMACross) GenerateSignals(_ context.Context, history strategy.History, portfolio strategy.PortfolioView) ([]domain.Signal, error) {
	var signals []domain.Signal

	for _, symbol := range history.Symbols() {
		bars := history.Bars(symbol)
		// Need one extra bar to compare against the previous step's SMAs.
		if len(bars) < s.longWindow+1 {
			continue
		}

		closes := strategy.Closes(bars)
		prev := closes[:len(closes)-1]

		curShort, _ := strategy.LastSMA(closes, s.shortWindow)
		curLong, _ := strategy.LastSMA(closes, s.longWindow)
		prevShort, _ := strategy.LastSMA(prev, s.shortWindow)
		prevLong, _ := strategy.LastSMA(prev, s.longWindow)

		last := bars[len(bars)-1]
		_, held := portfolio.Position(symbol)

		switch {
		case prevShort <= prevLong && curShort > curLong && !held:
			signals = append(signals, domain.Signal{
				Symbol:       symbol,
				Action:       domain.ActionBuy,
				PositionSize: s.positionSize,
				Reason:       fmt.Sprintf("bullish crossover: SMA(%d) crossed above SMA(%d)", s.shortWindow, s.longWindow),
				Confidence:   0.7,
				Timestamp:    last.Timestamp,
			})
		case prevShort >= prevLong && curShort < curLong && held:
			pos, _ := portfolio.Position(symbol)
			signals = append(signals, domain.Signal{
				Symbol:     symbol,
				Action:     domain.ActionSell,
				Quantity:   pos.Quantity,
				Reason:     fmt.Sprintf("bearish crossover: SMA(%d) crossed below SMA(%d)", s.shortWindow, s.longWindow),
				Confidence: 0.7,
				Timestamp:  last.Timestamp,
			})
		}
	}

	return signals, nil
}

// readCommonParams extracts the window pair and position size shared by the
// moving-average style factories, rejecting unknown parameter names.
func readCommonParams(params map[string]float64, defShort, defLong int, defSize float64) (int, int, float64, error) {
	seen := make(map[string]bool)
	short := int(paramOr(params, seen, "short_window", float64(defShort)))
	long := int(paramOr(params, seen, "long_window", float64(defLong)))
	size := paramOr(params, seen, "position_size", defSize)
	if err := rejectUnknown(params, seen); err != nil {
		return 0, 0, 0, err
	}
	return short, long, size, nil
}
