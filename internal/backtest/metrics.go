package backtest

import (
	"math"
	"time"

	"quantflow/internal/domain"
)

const tradingDaysPerYear = 252

// Summary holds the derived statistics for a completed replay. All ratio
// metrics guard division by zero and report a defined value (0 or +Inf)
// rather than NaN.
type Summary struct {
	StartDate    time.Time
	EndDate      time.Time
	InitialValue float64
	FinalValue   float64

	TotalReturn float64 // final/initial - 1
	CAGR        float64 // (final/initial)^(365/days) - 1
	Volatility  float64 // annualized sample std of daily returns

	SharpeRatio  float64
	SortinoRatio float64
	CalmarRatio  float64

	MaxDrawdown         float64 // positive fraction, peak-relative
	MaxDrawdownDuration int     // steps spent inside the longest drawdown

	TotalTrades  int
	ClosedTrades int
	WinRate      *float64 // nil when there are no closed trades
	ProfitFactor float64
	AvgWin       float64
	AvgLoss      float64 // negative

	AvgTradeDuration      float64 // days
	MaxConsecutiveWins    int
	MaxConsecutiveLosses  int
	TotalCommission       float64
	BestDay, WorstDay     float64
	AvgDailyReturn        float64
	RoundTrips            []ClosedTrade
}

// ClosedTrade is one FIFO-matched round trip between opposite-side fills.
// PnL is computed on post-slippage fill prices; commissions are reported
// separately in the summary.
type ClosedTrade struct {
	Symbol     string
	Quantity   int64
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
}

// Metric returns a summary statistic by its canonical name for optimization
// ranking. max_drawdown is negated so that a larger value is always better.
// The second return value is false for unknown names or an undefined win
// rate.
func (s Summary) Metric(name string) (float64, bool) {
	switch name {
	case "total_return":
		return s.TotalReturn, true
	case "cagr", "annual_return":
		return s.CAGR, true
	case "volatility":
		return -s.Volatility, true
	case "sharpe_ratio":
		return s.SharpeRatio, true
	case "sortino_ratio":
		return s.SortinoRatio, true
	case "calmar_ratio":
		return s.CalmarRatio, true
	case "max_drawdown":
		return -s.MaxDrawdown, true
	case "profit_factor":
		return s.ProfitFactor, true
	case "win_rate":
		if s.WinRate == nil {
			return 0, false
		}
		return *s.WinRate, true
	default:
		return 0, false
	}
}

// Summarize derives summary statistics from a completed snapshot series and
// trade list. It is pure: inputs are never mutated.
func Summarize(snapshots []domain.PortfolioSnapshot, trades []domain.Trade, cfg Config) Summary {
	s := Summary{
		InitialValue: cfg.InitialCapital,
		FinalValue:   cfg.InitialCapital,
		TotalTrades:  len(trades),
	}
	if len(snapshots) == 0 {
		return s
	}

	s.StartDate = snapshots[0].Timestamp
	s.EndDate = snapshots[len(snapshots)-1].Timestamp
	s.FinalValue = snapshots[len(snapshots)-1].TotalValue

	if s.InitialValue > 0 {
		s.TotalReturn = s.FinalValue/s.InitialValue - 1
	}

	days := s.EndDate.Sub(s.StartDate).Hours() / 24
	if days > 0 && s.InitialValue > 0 && s.FinalValue > 0 {
		s.CAGR = math.Pow(s.FinalValue/s.InitialValue, 365/days) - 1
	}

	returns := dailyReturns(snapshots)
	mean, std := meanStd(returns)
	s.AvgDailyReturn = mean
	if len(returns) > 0 {
		s.BestDay = maxOf(returns)
		s.WorstDay = minOf(returns)
	}
	if len(returns) > 1 {
		s.Volatility = std * math.Sqrt(tradingDaysPerYear)
	}

	// Sharpe: excess daily mean over daily std, annualized; 0 when std is 0.
	if std > 0 {
		s.SharpeRatio = (mean - cfg.RiskFreeRate/tradingDaysPerYear) / std * math.Sqrt(tradingDaysPerYear)
	}

	// Sortino: annualized return over downside deviation; +Inf when there
	// are returns but no negative ones.
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(returns) > 1 {
		if len(downside) > 0 {
			_, dstd := meanStd(downside)
			if dd := dstd * math.Sqrt(tradingDaysPerYear); dd > 0 {
				s.SortinoRatio = (mean*tradingDaysPerYear - cfg.RiskFreeRate) / dd
			}
		} else {
			s.SortinoRatio = math.Inf(1)
		}
	}

	s.MaxDrawdown, s.MaxDrawdownDuration = maxDrawdown(snapshots)
	if s.MaxDrawdown > 0 {
		s.CalmarRatio = s.CAGR / s.MaxDrawdown
	}

	for _, t := range trades {
		s.TotalCommission += t.Commission
	}

	s.RoundTrips = matchRoundTrips(trades)
	s.ClosedTrades = len(s.RoundTrips)
	if s.ClosedTrades > 0 {
		s.applyTradeStats()
	}

	return s
}

// applyTradeStats fills win rate, profit factor, and streak statistics from
// the matched round trips.
func (s *Summary) applyTradeStats() {
	var wins, losses int
	var grossProfit, grossLoss, totalDuration float64
	var curWins, curLosses int

	for _, rt := range s.RoundTrips {
		totalDuration += rt.ExitTime.Sub(rt.EntryTime).Hours() / 24
		switch {
		case rt.PnL > 0:
			wins++
			grossProfit += rt.PnL
			curWins++
			curLosses = 0
		case rt.PnL < 0:
			losses++
			grossLoss += -rt.PnL
			curLosses++
			curWins = 0
		default:
			curWins, curLosses = 0, 0
		}
		if curWins > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = curWins
		}
		if curLosses > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = curLosses
		}
	}

	wr := float64(wins) / float64(s.ClosedTrades)
	s.WinRate = &wr
	s.AvgTradeDuration = totalDuration / float64(s.ClosedTrades)

	if wins > 0 {
		s.AvgWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		s.AvgLoss = -grossLoss / float64(losses)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	}
}

// matchRoundTrips pairs opposite-side fills per symbol in FIFO order. A fill
// opens or extends exposure in its direction; an opposite fill closes the
// oldest open quantity first. Trades must already be in execution order,
// which the engine guarantees.
func matchRoundTrips(trades []domain.Trade) []ClosedTrade {
	type openFill struct {
		qty   int64
		price float64
		at    time.Time
		side  domain.Side
	}
	open := make(map[string][]openFill)
	var closed []ClosedTrade

	for _, t := range trades {
		queue := open[t.Symbol]
		remaining := t.Quantity

		for remaining > 0 && len(queue) > 0 && queue[0].side != t.Side {
			head := &queue[0]
			matched := min64(remaining, head.qty)

			// PnL is always sell price minus buy price on the matched
			// quantity, whichever side came first.
			buyPrice, sellPrice := head.price, t.Price
			if head.side == domain.SideSell {
				buyPrice, sellPrice = t.Price, head.price
			}
			closed = append(closed, ClosedTrade{
				Symbol:     t.Symbol,
				Quantity:   matched,
				EntryTime:  head.at,
				ExitTime:   t.Timestamp,
				EntryPrice: head.price,
				ExitPrice:  t.Price,
				PnL:        (sellPrice - buyPrice) * float64(matched),
			})

			head.qty -= matched
			remaining -= matched
			if head.qty == 0 {
				queue = queue[1:]
			}
		}

		if remaining > 0 {
			queue = append(queue, openFill{qty: remaining, price: t.Price, at: t.Timestamp, side: t.Side})
		}
		open[t.Symbol] = queue
	}

	return closed
}

// dailyReturns computes simple percentage changes between consecutive
// snapshots.
func dailyReturns(snapshots []domain.PortfolioSnapshot) []float64 {
	if len(snapshots) < 2 {
		return nil
	}
	out := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].TotalValue
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, snapshots[i].TotalValue/prev-1)
	}
	return out
}

// maxDrawdown returns the largest peak-relative decline and the length in
// steps of the longest stretch spent below a prior peak.
func maxDrawdown(snapshots []domain.PortfolioSnapshot) (float64, int) {
	var maxDD float64
	var maxDur, curDur int
	peak := math.Inf(-1)

	for _, snap := range snapshots {
		if snap.TotalValue >= peak {
			peak = snap.TotalValue
			curDur = 0
			continue
		}
		curDur++
		if curDur > maxDur {
			maxDur = curDur
		}
		if peak > 0 {
			if dd := (peak - snap.TotalValue) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD, maxDur
}

// meanStd returns the mean and sample standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
