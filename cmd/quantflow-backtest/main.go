// Replay a strategy over stored daily bars and print its performance summary.
//
// Usage:
//
//	go run cmd/quantflow-backtest/main.go -strategy sma-cross -symbols AAPL,MSFT \
//	    -start 2023-01-01 -end 2024-01-01 [-params short_window=10,long_window=20]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"quantflow/internal/backtest"
	"quantflow/internal/config"
	"quantflow/internal/domain"
	"quantflow/internal/store"
	"quantflow/internal/strategy/builtins"
	"quantflow/internal/util"
)

func main() {
	strategyName := flag.String("strategy", "sma-cross", "strategy to replay")
	symbols := flag.String("symbols", "", "comma-separated symbols (required)")
	start := flag.String("start", "", "start date, YYYY-MM-DD (required)")
	end := flag.String("end", "", "end date, YYYY-MM-DD (required)")
	params := flag.String("params", "", "strategy parameters, name=value,...")
	flag.Parse()

	cfgPath := "config/quantflow.yaml"
	if p := os.Getenv("QUANTFLOW_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *symbols == "" || *start == "" || *end == "" {
		flag.Usage()
		os.Exit(1)
	}
	startT, endT, err := parseRange(*start, *end)
	if err != nil {
		log.Fatalf("bad date range: %v", err)
	}
	paramMap, err := parseParams(*params)
	if err != nil {
		log.Fatalf("bad -params: %v", err)
	}

	ctx := context.Background()

	strat, err := builtins.DefaultRegistry().Create(*strategyName, paramMap)
	if err != nil {
		log.Fatalf("building strategy: %v", err)
	}

	series, err := loadSeries(ctx, cfg.Storage.DataDir, strings.Split(*symbols, ","), startT, endT)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}

	engine := backtest.New(backtestConfig(cfg), logger)
	result, err := engine.Run(ctx, series, strat)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	printSummary(result)
}

func backtestConfig(cfg *config.Config) backtest.Config {
	return backtest.Config{
		InitialCapital:      cfg.Backtest.InitialCapital,
		CommissionRate:      cfg.Backtest.CommissionRate,
		SlippageRate:        cfg.Backtest.SlippageRate,
		MaxPositionFraction: cfg.Backtest.MaxPositionFraction,
		AllowShort:          cfg.Backtest.AllowShort,
		RiskFreeRate:        cfg.Backtest.RiskFreeRate,
	}
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s before start %s", end, start)
	}
	return s, e, nil
}

func parseParams(s string) (map[string]float64, error) {
	if s == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}

func loadSeries(ctx context.Context, dataDir string, symbols []string, start, end time.Time) (*backtest.Series, error) {
	bs := store.NewParquetStore(dataDir)
	var all []domain.Bar
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		bars, err := bs.ReadBars(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", sym, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("no stored bars for %s in range", sym)
		}
		all = append(all, bars...)
	}
	return backtest.NewSeries(all)
}

func printSummary(r *backtest.Result) {
	s := r.Summary
	fmt.Printf("Strategy:        %s\n", r.StrategyName)
	fmt.Printf("Period:          %s .. %s\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Printf("Final value:     %.2f\n", s.FinalValue)
	fmt.Printf("Total return:    %.2f%%\n", s.TotalReturn*100)
	fmt.Printf("CAGR:            %.2f%%\n", s.CAGR*100)
	fmt.Printf("Volatility:      %.2f%%\n", s.Volatility*100)
	fmt.Printf("Sharpe ratio:    %.3f\n", s.SharpeRatio)
	fmt.Printf("Sortino ratio:   %.3f\n", s.SortinoRatio)
	fmt.Printf("Calmar ratio:    %.3f\n", s.CalmarRatio)
	fmt.Printf("Max drawdown:    %.2f%% (%d steps)\n", s.MaxDrawdown*100, s.MaxDrawdownDuration)
	fmt.Printf("Closed trades:   %d\n", s.ClosedTrades)
	if s.WinRate != nil {
		fmt.Printf("Win rate:        %.1f%%\n", *s.WinRate*100)
		fmt.Printf("Profit factor:   %.2f\n", s.ProfitFactor)
	}
	fmt.Printf("Commission paid: %.2f\n", s.TotalCommission)
	fmt.Printf("Fills:           %d\n", len(r.Trades))
}
