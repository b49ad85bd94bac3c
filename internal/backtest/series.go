package backtest

import (
	"sort"
	"time"

	"quantflow/internal/domain"
	"quantflow/internal/strategy"
)

// Series holds validated, ordered, immutable bar sequences per symbol. A
// replay step exists for every distinct timestamp across all symbols.
type Series struct {
	symbols []string // sorted
	bars    map[string][]domain.Bar
	steps   []time.Time // ascending union of bar timestamps
}

// NewSeries groups bars by symbol and validates them. Bars for each symbol
// must arrive in strictly increasing timestamp order; a duplicate or
// out-of-order timestamp returns a *DataIntegrityError and no Series.
func NewSeries(bars []domain.Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, &DataIntegrityError{Reason: "no bars"}
	}

	grouped := make(map[string][]domain.Bar)
	for _, b := range bars {
		if b.Symbol == "" {
			return nil, &DataIntegrityError{Reason: "bar with empty symbol"}
		}
		if b.Timestamp.IsZero() {
			return nil, &DataIntegrityError{Symbol: b.Symbol, Index: len(grouped[b.Symbol]), Reason: "zero timestamp"}
		}
		grouped[b.Symbol] = append(grouped[b.Symbol], b)
	}

	stepSet := make(map[time.Time]struct{})
	symbols := make([]string, 0, len(grouped))
	for sym, sb := range grouped {
		symbols = append(symbols, sym)
		for i := range sb {
			if i > 0 {
				switch {
				case sb[i].Timestamp.Equal(sb[i-1].Timestamp):
					return nil, &DataIntegrityError{Symbol: sym, Index: i, Reason: "duplicate timestamp"}
				case sb[i].Timestamp.Before(sb[i-1].Timestamp):
					return nil, &DataIntegrityError{Symbol: sym, Index: i, Reason: "non-monotonic timestamp"}
				}
			}
			stepSet[sb[i].Timestamp] = struct{}{}
		}
	}
	sort.Strings(symbols)

	steps := make([]time.Time, 0, len(stepSet))
	for t := range stepSet {
		steps = append(steps, t)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Before(steps[j]) })

	return &Series{symbols: symbols, bars: grouped, steps: steps}, nil
}

// Symbols returns the symbols in the series, sorted.
func (s *Series) Symbols() []string {
	return s.symbols
}

// Bars returns the full bar sequence for a symbol. Callers must not mutate
// the returned slice.
func (s *Series) Bars(symbol string) []domain.Bar {
	return s.bars[symbol]
}

// Steps returns the ascending replay timestamps.
func (s *Series) Steps() []time.Time {
	return s.steps
}

// NumSteps returns the number of replay steps.
func (s *Series) NumSteps() int {
	return len(s.steps)
}

// Slice returns the sub-series covering step indices [from, to). The result
// shares backing arrays with the parent; no bars are copied or re-validated.
// Walk-forward analysis uses this to partition train and test windows.
func (s *Series) Slice(from, to int) *Series {
	if from < 0 {
		from = 0
	}
	if to > len(s.steps) {
		to = len(s.steps)
	}
	if from >= to {
		return &Series{symbols: nil, bars: map[string][]domain.Bar{}, steps: nil}
	}

	start := s.steps[from]
	end := s.steps[to-1]

	sub := make(map[string][]domain.Bar, len(s.bars))
	var symbols []string
	for _, sym := range s.symbols {
		sb := s.bars[sym]
		lo := sort.Search(len(sb), func(i int) bool { return !sb[i].Timestamp.Before(start) })
		hi := sort.Search(len(sb), func(i int) bool { return sb[i].Timestamp.After(end) })
		if lo < hi {
			sub[sym] = sb[lo:hi:hi]
			symbols = append(symbols, sym)
		}
	}

	return &Series{symbols: symbols, bars: sub, steps: s.steps[from:to:to]}
}

// UpTo returns the causal view of the series ending at t: the same view a
// strategy receives at step t during replay.
func (s *Series) UpTo(t time.Time) strategy.History {
	return window{s: s, cut: t}
}

// window is the causal view handed to strategies: bars up to and including
// the cut timestamp. It implements strategy.History.
type window struct {
	s   *Series
	cut time.Time
}

func (w window) Symbols() []string {
	return w.s.symbols
}

func (w window) Bars(symbol string) []domain.Bar {
	sb := w.s.bars[symbol]
	hi := sort.Search(len(sb), func(i int) bool { return sb[i].Timestamp.After(w.cut) })
	return sb[:hi:hi]
}

// barAt returns the bar for a symbol exactly at t, if one exists.
func (s *Series) barAt(symbol string, t time.Time) (domain.Bar, bool) {
	sb := s.bars[symbol]
	i := sort.Search(len(sb), func(i int) bool { return !sb[i].Timestamp.Before(t) })
	if i < len(sb) && sb[i].Timestamp.Equal(t) {
		return sb[i], true
	}
	return domain.Bar{}, false
}
