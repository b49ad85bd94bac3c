package backtest

import (
	"errors"
	"testing"
	"time"

	"quantflow/internal/domain"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// makeBars builds one daily bar per close price, starting at day0.
func makeBars(symbol string, closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: day0.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestNewSeriesValid(t *testing.T) {
	bars := append(makeBars("AAPL", 100, 101, 102), makeBars("MSFT", 200, 202)...)
	s, err := NewSeries(bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	if got := s.Symbols(); len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("Symbols() = %v, want [AAPL MSFT]", got)
	}
	if s.NumSteps() != 3 {
		t.Errorf("NumSteps() = %d, want 3", s.NumSteps())
	}
	if len(s.Bars("MSFT")) != 2 {
		t.Errorf("Bars(MSFT) has %d bars, want 2", len(s.Bars("MSFT")))
	}
}

func TestNewSeriesRejectsBadInput(t *testing.T) {
	dup := makeBars("AAPL", 100, 101)
	dup[1].Timestamp = dup[0].Timestamp

	backwards := makeBars("AAPL", 100, 101, 102)
	backwards[2].Timestamp = day0.AddDate(0, 0, -1)

	tests := []struct {
		name string
		bars []domain.Bar
	}{
		{"empty input", nil},
		{"duplicate timestamp", dup},
		{"non-monotonic timestamp", backwards},
		{"empty symbol", []domain.Bar{{Timestamp: day0, Close: 1}}},
		{"zero timestamp", []domain.Bar{{Symbol: "AAPL", Close: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSeries(tt.bars)
			if err == nil {
				t.Fatal("NewSeries accepted malformed input")
			}
			var die *DataIntegrityError
			if !errors.As(err, &die) {
				t.Errorf("error is %T, want *DataIntegrityError", err)
			}
		})
	}
}

func TestWindowIsCausal(t *testing.T) {
	s, err := NewSeries(makeBars("AAPL", 100, 101, 102, 103, 104))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	cut := s.Steps()[2]
	w := s.UpTo(cut)

	bars := w.Bars("AAPL")
	if len(bars) != 3 {
		t.Fatalf("window has %d bars, want 3", len(bars))
	}
	for _, b := range bars {
		if b.Timestamp.After(cut) {
			t.Errorf("window leaked future bar at %v (cut %v)", b.Timestamp, cut)
		}
	}
}

func TestSlice(t *testing.T) {
	s, err := NewSeries(makeBars("AAPL", 100, 101, 102, 103, 104, 105))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	sub := s.Slice(2, 5)
	if sub.NumSteps() != 3 {
		t.Fatalf("sub.NumSteps() = %d, want 3", sub.NumSteps())
	}
	bars := sub.Bars("AAPL")
	if len(bars) != 3 || bars[0].Close != 102 || bars[2].Close != 104 {
		t.Errorf("Slice(2,5) bars = %v", bars)
	}

	// Out-of-range indices are clamped; inverted ranges are empty.
	if got := s.Slice(-1, 100).NumSteps(); got != 6 {
		t.Errorf("clamped slice has %d steps, want 6", got)
	}
	if got := s.Slice(4, 2).NumSteps(); got != 0 {
		t.Errorf("inverted slice has %d steps, want 0", got)
	}
}

func TestSliceSharesBacking(t *testing.T) {
	s, err := NewSeries(makeBars("AAPL", 100, 101, 102, 103))
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	sub := s.Slice(1, 3)
	if &sub.Bars("AAPL")[0] != &s.Bars("AAPL")[1] {
		t.Error("Slice copied bars instead of sharing the backing array")
	}
}
