package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"quantflow/internal/domain"
	"quantflow/internal/strategy"
)

// Config defines execution frictions and risk limits for a replay.
type Config struct {
	InitialCapital      float64
	CommissionRate      float64 // fraction of notional per fill
	SlippageRate        float64 // adverse price movement fraction per fill
	MaxPositionFraction float64 // cap on position value / total portfolio value
	AllowShort          bool
	RiskFreeRate        float64 // annual, for Sharpe/Sortino
}

// DefaultConfig returns the standard configuration: 100k capital, 0.1%
// commission, 0.05% slippage, 25% max position, long-only, 2% risk-free.
func DefaultConfig() Config {
	return Config{
		InitialCapital:      100000,
		CommissionRate:      0.001,
		SlippageRate:        0.0005,
		MaxPositionFraction: 0.25,
		AllowShort:          false,
		RiskFreeRate:        0.02,
	}
}

// Result holds everything produced by a single replay.
type Result struct {
	StrategyName string
	Start, End   time.Time
	Snapshots    []domain.PortfolioSnapshot
	Trades       []domain.Trade
	Summary      Summary
}

// Engine replays an ordered bar series once, step by step, invoking the
// strategy with a causal window ending at the current bar, applying
// execution frictions, and recording resulting state. A single replay is
// strictly sequential; run independent replays on separate Engine calls with
// separate ledgers for parallelism.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// New creates an Engine. A nil logger falls back to slog.Default().
func New(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, log: log}
}

// Run replays the series through the strategy and returns the snapshot
// series, trade list, and summary metrics. The run is deterministic for
// identical inputs. A strategy error aborts the run; sizing shortfalls never
// do (the signal is downgraded to hold instead).
func (e *Engine) Run(ctx context.Context, series *Series, strat strategy.Strategy) (*Result, error) {
	if series == nil || series.NumSteps() == 0 {
		return nil, &DataIntegrityError{Reason: "no bars to replay"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ledger := NewLedger(e.cfg.InitialCapital)
	steps := series.Steps()

	for _, t := range steps {
		// Mark every symbol trading at this step at its close before the
		// strategy sees the window, so sizing uses current valuations.
		for _, sym := range series.Symbols() {
			if bar, ok := series.barAt(sym, t); ok {
				ledger.Mark(sym, bar.Close)
			}
		}

		signals, err := strat.GenerateSignals(ctx, series.UpTo(t), ledger)
		if err != nil {
			return nil, fmt.Errorf("strategy %s at %s: %w", strat.Name(), t.Format(time.RFC3339), err)
		}

		// At most one signal per symbol per step; later duplicates are
		// dropped.
		acted := make(map[string]bool, len(signals))
		for _, sig := range signals {
			if acted[sig.Symbol] {
				e.log.Warn("duplicate signal ignored", "symbol", sig.Symbol, "step", t)
				continue
			}
			acted[sig.Symbol] = true

			bar, ok := series.barAt(sig.Symbol, t)
			if !ok {
				// No price at this step, nothing to fill against.
				continue
			}
			e.execute(ledger, sig, bar.Close, t, strat.Name())
		}

		ledger.RecordSnapshot(t)
	}

	snapshots := ledger.Snapshots()
	trades := ledger.Trades()

	return &Result{
		StrategyName: strat.Name(),
		Start:        steps[0],
		End:          steps[len(steps)-1],
		Snapshots:    snapshots,
		Trades:       trades,
		Summary:      Summarize(snapshots, trades, e.cfg),
	}, nil
}

// execute sizes, clips, and applies one signal. Constraint violations
// downgrade the signal to hold; they are logged and never returned as
// errors.
func (e *Engine) execute(ledger *Ledger, sig domain.Signal, closePrice float64, at time.Time, strategyName string) {
	if sig.Action == domain.ActionHold || closePrice <= 0 {
		return
	}

	total := ledger.TotalValue()
	pos, _ := ledger.Position(sig.Symbol)

	switch sig.Action {
	case domain.ActionBuy:
		fillPrice := closePrice * (1 + e.cfg.SlippageRate)

		qty := sig.Quantity
		if qty <= 0 {
			frac := sig.PositionSize
			if frac <= 0 {
				frac = e.cfg.MaxPositionFraction
			}
			qty = int64(math.Floor(total * frac / fillPrice))
		}

		// Clip so the resulting position value never exceeds the cap.
		capValue := e.cfg.MaxPositionFraction*total - pos.MarketValue(closePrice)
		if maxQty := int64(math.Floor(capValue / fillPrice)); qty > maxQty {
			qty = maxQty
		}
		// Clip to affordable quantity including commission.
		if maxQty := int64(math.Floor(ledger.Cash() / (fillPrice * (1 + e.cfg.CommissionRate)))); qty > maxQty {
			qty = maxQty
		}
		if qty <= 0 {
			e.log.Warn("buy downgraded to hold",
				"symbol", sig.Symbol, "step", at, "cash", ledger.Cash(), "reason", sig.Reason)
			return
		}

		commission := float64(qty) * fillPrice * e.cfg.CommissionRate
		ledger.ApplyFill(sig.Symbol, domain.SideBuy, qty, fillPrice, commission, at, strategyName, sig.Reason)

	case domain.ActionSell:
		fillPrice := closePrice * (1 - e.cfg.SlippageRate)

		qty := sig.Quantity
		if qty <= 0 {
			qty = pos.Quantity
		}

		if !e.cfg.AllowShort {
			if pos.Quantity < qty {
				qty = pos.Quantity
			}
			if qty <= 0 {
				e.log.Warn("sell downgraded to hold",
					"symbol", sig.Symbol, "step", at, "held", pos.Quantity, "reason", sig.Reason)
				return
			}
		} else {
			// Shorts are capped by the same position-value fraction.
			capValue := e.cfg.MaxPositionFraction*total + pos.MarketValue(closePrice)
			if maxQty := int64(math.Floor(capValue / fillPrice)); qty > maxQty {
				qty = maxQty
			}
			if qty <= 0 {
				e.log.Warn("short sell downgraded to hold", "symbol", sig.Symbol, "step", at)
				return
			}
		}

		commission := float64(qty) * fillPrice * e.cfg.CommissionRate
		ledger.ApplyFill(sig.Symbol, domain.SideSell, qty, fillPrice, commission, at, strategyName, sig.Reason)
	}
}
