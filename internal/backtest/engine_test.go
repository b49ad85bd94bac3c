package backtest

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"

	"quantflow/internal/domain"
	"quantflow/internal/strategy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// holdStrategy never trades.
type holdStrategy struct{}

func (holdStrategy) Name() string { return "hold-only" }
func (holdStrategy) GenerateSignals(_ context.Context, _ strategy.History, _ strategy.PortfolioView) ([]domain.Signal, error) {
	return nil, nil
}

// scriptStrategy buys the full target fraction on the first step and sells
// everything on the last. totalSteps must equal the series length.
type scriptStrategy struct {
	symbol     string
	fraction   float64
	totalSteps int
}

func (s scriptStrategy) Name() string { return "scripted" }

func (s scriptStrategy) GenerateSignals(_ context.Context, h strategy.History, pv strategy.PortfolioView) ([]domain.Signal, error) {
	bars := h.Bars(s.symbol)
	switch len(bars) {
	case 1:
		return []domain.Signal{{
			Symbol:       s.symbol,
			Action:       domain.ActionBuy,
			PositionSize: s.fraction,
			Reason:       "scripted entry",
		}}, nil
	case s.totalSteps:
		pos, _ := pv.Position(s.symbol)
		return []domain.Signal{{
			Symbol:   s.symbol,
			Action:   domain.ActionSell,
			Quantity: pos.Quantity,
			Reason:   "scripted exit",
		}}, nil
	}
	return nil, nil
}

// momentumStrategy trades on the last two closes only; used for the
// no-lookahead property.
type momentumStrategy struct{}

func (momentumStrategy) Name() string { return "momentum" }

func (momentumStrategy) GenerateSignals(_ context.Context, h strategy.History, pv strategy.PortfolioView) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, sym := range h.Symbols() {
		bars := h.Bars(sym)
		if len(bars) < 2 {
			continue
		}
		cur, prev := bars[len(bars)-1].Close, bars[len(bars)-2].Close
		pos, held := pv.Position(sym)
		if cur > prev && !held {
			signals = append(signals, domain.Signal{Symbol: sym, Action: domain.ActionBuy, PositionSize: 0.2})
		} else if cur < prev && held {
			signals = append(signals, domain.Signal{Symbol: sym, Action: domain.ActionSell, Quantity: pos.Quantity})
		}
	}
	return signals, nil
}

func TestRunHoldOnlyPreservesCapital(t *testing.T) {
	s, err := NewSeries(makeBars("AAPL", 100, 105, 95, 110, 120))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	eng := New(DefaultConfig(), discardLogger())
	res, err := eng.Run(t.Context(), s, holdStrategy{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 0 {
		t.Errorf("got %d trades, want 0", len(res.Trades))
	}
	final := res.Snapshots[len(res.Snapshots)-1].TotalValue
	if final != 100000 {
		t.Errorf("final value = %v, want 100000", final)
	}
	if res.Summary.TotalReturn != 0 {
		t.Errorf("TotalReturn = %v, want 0", res.Summary.TotalReturn)
	}
	if res.Summary.WinRate != nil {
		t.Error("WinRate should be nil with no closed trades")
	}
}

func TestRunBuyFirstSellLastConservation(t *testing.T) {
	closes := []float64{100, 102, 98, 108, 125}
	s, err := NewSeries(makeBars("AAPL", closes...))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	cfg := DefaultConfig()
	cfg.CommissionRate = 0
	cfg.SlippageRate = 0
	eng := New(cfg, discardLogger())

	res, err := eng.Run(t.Context(), s, scriptStrategy{symbol: "AAPL", fraction: 0.25, totalSteps: len(closes)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(res.Trades))
	}

	buy := res.Trades[0]
	if buy.Side != domain.SideBuy || buy.Price != closes[0] {
		t.Errorf("first trade = %+v", buy)
	}

	// With zero frictions, final equity is the idle cash plus the invested
	// shares scaled by last/first close.
	qty := float64(buy.Quantity)
	want := 100000 - qty*closes[0] + qty*closes[len(closes)-1]
	final := res.Snapshots[len(res.Snapshots)-1].TotalValue
	if !almostEqual(final, want) {
		t.Errorf("final value = %v, want %v", final, want)
	}
	// All equity is back in cash after the exit.
	if !almostEqual(res.Snapshots[len(res.Snapshots)-1].Cash, want) {
		t.Errorf("final cash = %v, want %v", res.Snapshots[len(res.Snapshots)-1].Cash, want)
	}
}

func TestRunSnapshotInvariant(t *testing.T) {
	// Property: on randomized walks, every snapshot satisfies
	// cash + positions value == total value, and the final state is
	// reproducible from the trade list.
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 20; trial++ {
		closes := make([]float64, 60)
		closes[0] = 100
		for i := 1; i < len(closes); i++ {
			closes[i] = closes[i-1] * (1 + (rng.Float64()-0.5)*0.04)
		}
		s, err := NewSeries(makeBars("AAPL", closes...))
		if err != nil {
			t.Fatalf("NewSeries: %v", err)
		}

		eng := New(DefaultConfig(), discardLogger())
		res, err := eng.Run(t.Context(), s, momentumStrategy{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		for i, snap := range res.Snapshots {
			if !almostEqual(snap.TotalValue, snap.Cash+snap.PositionsValue) {
				t.Fatalf("trial %d step %d: invariant broken: %+v", trial, i, snap)
			}
		}

		// Replay the trade list independently.
		cash := 100000.0
		var qty int64
		for _, tr := range res.Trades {
			if tr.Side == domain.SideBuy {
				cash -= tr.Value + tr.Commission
				qty += tr.Quantity
			} else {
				cash += tr.Value - tr.Commission
				qty -= tr.Quantity
			}
		}
		want := cash + float64(qty)*closes[len(closes)-1]
		final := res.Snapshots[len(res.Snapshots)-1].TotalValue
		if !almostEqual(final, want) {
			t.Fatalf("trial %d: final %v != reconstructed %v", trial, final, want)
		}
	}
}

func TestRunNoLookahead(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	closes := make([]float64, 40)
	closes[0] = 100
	for i := 1; i < len(closes); i++ {
		closes[i] = closes[i-1] * (1 + (rng.Float64()-0.5)*0.06)
	}

	run := func(cs []float64) []domain.Trade {
		s, err := NewSeries(makeBars("AAPL", cs...))
		if err != nil {
			t.Fatalf("NewSeries: %v", err)
		}
		res, err := New(DefaultConfig(), discardLogger()).Run(t.Context(), s, momentumStrategy{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res.Trades
	}

	base := run(closes)

	// Mutate everything after step k; trades at or before step k must be
	// unchanged.
	const k = 20
	mutated := make([]float64, len(closes))
	copy(mutated, closes)
	for i := k + 1; i < len(mutated); i++ {
		mutated[i] *= 3
	}
	alt := run(mutated)

	cut := day0.AddDate(0, 0, k)
	var basePrefix, altPrefix []domain.Trade
	for _, tr := range base {
		if !tr.Timestamp.After(cut) {
			basePrefix = append(basePrefix, tr)
		}
	}
	for _, tr := range alt {
		if !tr.Timestamp.After(cut) {
			altPrefix = append(altPrefix, tr)
		}
	}

	if len(basePrefix) != len(altPrefix) {
		t.Fatalf("trade count before cut differs: %d vs %d", len(basePrefix), len(altPrefix))
	}
	for i := range basePrefix {
		if basePrefix[i] != altPrefix[i] {
			t.Errorf("trade %d differs: %+v vs %+v", i, basePrefix[i], altPrefix[i])
		}
	}
}

func TestRunClipsToMaxPositionFraction(t *testing.T) {
	s, err := NewSeries(makeBars("AAPL", 100, 100, 100))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SlippageRate = 0
	cfg.CommissionRate = 0
	cfg.MaxPositionFraction = 0.25
	eng := New(cfg, discardLogger())

	// Request the whole portfolio; expect a quarter.
	res, err := eng.Run(t.Context(), s, scriptStrategy{symbol: "AAPL", fraction: 1.0, totalSteps: 99})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	if got := res.Trades[0].Quantity; got != 250 {
		t.Errorf("clipped quantity = %d, want 250", got)
	}
}

func TestRunSellWithoutHoldingsDowngraded(t *testing.T) {
	s, err := NewSeries(makeBars("AAPL", 100, 100))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	seller := signalFunc(func(h strategy.History, _ strategy.PortfolioView) []domain.Signal {
		return []domain.Signal{{Symbol: "AAPL", Action: domain.ActionSell, Quantity: 10}}
	})

	res, err := New(DefaultConfig(), discardLogger()).Run(t.Context(), s, seller)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("got %d trades, want 0 (long-only sell without holdings)", len(res.Trades))
	}
}

func TestRunShortSellingWhenAllowed(t *testing.T) {
	s, err := NewSeries(makeBars("AAPL", 100, 100))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	cfg := DefaultConfig()
	cfg.AllowShort = true
	cfg.SlippageRate = 0
	cfg.CommissionRate = 0

	seller := signalFunc(func(h strategy.History, _ strategy.PortfolioView) []domain.Signal {
		if len(h.Bars("AAPL")) != 1 {
			return nil
		}
		return []domain.Signal{{Symbol: "AAPL", Action: domain.ActionSell, Quantity: 10}}
	})

	res, err := New(cfg, discardLogger()).Run(t.Context(), s, seller)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	if res.Trades[0].Side != domain.SideSell {
		t.Errorf("trade side = %v, want sell", res.Trades[0].Side)
	}
}

func TestRunEmptySeriesFailsFast(t *testing.T) {
	eng := New(DefaultConfig(), discardLogger())
	_, err := eng.Run(t.Context(), nil, holdStrategy{})
	var die *DataIntegrityError
	if !errors.As(err, &die) {
		t.Errorf("error is %T, want *DataIntegrityError", err)
	}
}

func TestRunStrategyErrorAborts(t *testing.T) {
	s, err := NewSeries(makeBars("AAPL", 100, 100))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	boom := errors.New("boom")
	failing := signalFuncErr(func(strategy.History, strategy.PortfolioView) ([]domain.Signal, error) {
		return nil, boom
	})

	_, err = New(DefaultConfig(), discardLogger()).Run(t.Context(), s, failing)
	if !errors.Is(err, boom) {
		t.Errorf("Run error = %v, want wrapped boom", err)
	}
}

// signalFunc adapts a plain function to the Strategy interface.
type signalFunc func(strategy.History, strategy.PortfolioView) []domain.Signal

func (signalFunc) Name() string { return "func" }
func (f signalFunc) GenerateSignals(_ context.Context, h strategy.History, pv strategy.PortfolioView) ([]domain.Signal, error) {
	return f(h, pv), nil
}

type signalFuncErr func(strategy.History, strategy.PortfolioView) ([]domain.Signal, error)

func (signalFuncErr) Name() string { return "func-err" }
func (f signalFuncErr) GenerateSignals(_ context.Context, h strategy.History, pv strategy.PortfolioView) ([]domain.Signal, error) {
	return f(h, pv)
}
