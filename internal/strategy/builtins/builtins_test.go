package builtins

import (
	"testing"
	"time"

	"quantflow/internal/domain"
)

// fakeHistory serves a fixed bar slice for one symbol.
type fakeHistory struct {
	symbol string
	bars   []domain.Bar
}

func (h fakeHistory) Symbols() []string { return []string{h.symbol} }
func (h fakeHistory) Bars(symbol string) []domain.Bar {
	if symbol != h.symbol {
		return nil
	}
	return h.bars
}

// fakePortfolio reports a configurable position.
type fakePortfolio struct {
	positions map[string]domain.Position
}

func (p fakePortfolio) Cash() float64       { return 100000 }
func (p fakePortfolio) TotalValue() float64 { return 100000 }
func (p fakePortfolio) Position(symbol string) (domain.Position, bool) {
	pos, ok := p.positions[symbol]
	return pos, ok
}

func historyFromCloses(symbol string, closes ...float64) fakeHistory {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: symbol, Timestamp: start.AddDate(0, 0, i), Close: c}
	}
	return fakeHistory{symbol: symbol, bars: bars}
}

func TestSMACrossBullishSignal(t *testing.T) {
	s, err := NewSMACross(2, 3, 0.1)
	if err != nil {
		t.Fatalf("NewSMACross: %v", err)
	}

	// Declining prices then a sharp rally pushes SMA(2) above SMA(3).
	h := historyFromCloses("AAPL", 10, 9, 8, 7, 12)
	signals, err := s.GenerateSignals(t.Context(), h, fakePortfolio{})
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Action != domain.ActionBuy || sig.Symbol != "AAPL" {
		t.Errorf("signal = %+v, want buy AAPL", sig)
	}
	if sig.PositionSize != 0.1 {
		t.Errorf("PositionSize = %v, want 0.1", sig.PositionSize)
	}
}

func TestSMACrossBearishExit(t *testing.T) {
	s, err := NewSMACross(2, 3, 0.1)
	if err != nil {
		t.Fatalf("NewSMACross: %v", err)
	}

	h := historyFromCloses("AAPL", 7, 8, 9, 10, 5)
	pf := fakePortfolio{positions: map[string]domain.Position{
		"AAPL": {Symbol: "AAPL", Quantity: 50, AvgPrice: 8},
	}}
	signals, err := s.GenerateSignals(t.Context(), h, pf)
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	if signals[0].Action != domain.ActionSell || signals[0].Quantity != 50 {
		t.Errorf("signal = %+v, want sell of 50", signals[0])
	}
}

func TestSMACrossNoSignalDuringWarmup(t *testing.T) {
	s, _ := NewSMACross(2, 3, 0.1)
	h := historyFromCloses("AAPL", 10, 11, 12)
	signals, err := s.GenerateSignals(t.Context(), h, fakePortfolio{})
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("got %d signals during warmup, want 0", len(signals))
	}
}

func TestSMACrossFactoryValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]float64
		wantErr bool
	}{
		{"defaults", nil, false},
		{"valid", map[string]float64{"short_window": 5, "long_window": 20, "position_size": 0.2}, false},
		{"short >= long", map[string]float64{"short_window": 20, "long_window": 10}, true},
		{"zero short", map[string]float64{"short_window": 0}, true},
		{"oversize position", map[string]float64{"position_size": 1.5}, true},
		{"unknown parameter", map[string]float64{"bogus": 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SMACrossFactory(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("SMACrossFactory(%v) error = %v, wantErr %v", tt.params, err, tt.wantErr)
			}
		})
	}
}

func TestRSIFactoryValidation(t *testing.T) {
	if _, err := RSIFactory(map[string]float64{"oversold": 80, "overbought": 20}); err == nil {
		t.Error("RSIFactory accepted inverted thresholds")
	}
	if _, err := RSIFactory(nil); err != nil {
		t.Errorf("RSIFactory(defaults): %v", err)
	}
}

func TestRSIReversalBuysOversold(t *testing.T) {
	s, err := NewRSIReversal(3, 30, 70, 0.1)
	if err != nil {
		t.Fatalf("NewRSIReversal: %v", err)
	}

	h := historyFromCloses("AAPL", 10, 9, 8, 7, 6)
	signals, err := s.GenerateSignals(t.Context(), h, fakePortfolio{})
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 1 || signals[0].Action != domain.ActionBuy {
		t.Fatalf("signals = %+v, want one buy", signals)
	}
}

func TestBuyHoldEntersOnce(t *testing.T) {
	s, err := NewBuyHold(0.25)
	if err != nil {
		t.Fatalf("NewBuyHold: %v", err)
	}

	h := historyFromCloses("AAPL", 100)
	signals, err := s.GenerateSignals(t.Context(), h, fakePortfolio{})
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 1 || signals[0].Action != domain.ActionBuy {
		t.Fatalf("signals = %+v, want one buy", signals)
	}

	// Holding already: no further entries.
	pf := fakePortfolio{positions: map[string]domain.Position{
		"AAPL": {Symbol: "AAPL", Quantity: 10},
	}}
	signals, err = s.GenerateSignals(t.Context(), h, pf)
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("got %d signals while holding, want 0", len(signals))
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	names := r.List()
	want := []string{"buy-hold", "rsi-reversal", "sma-cross"}
	if len(names) != len(want) {
		t.Fatalf("List = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	for _, name := range names {
		if _, err := r.Create(name, nil); err != nil {
			t.Errorf("Create(%q) with defaults: %v", name, err)
		}
	}
}
