// Sweep strategy parameters over stored daily bars, print the ranked
// results, and record the sweep in the SQLite results database.
//
// The search space, method (grid, random, bayes), scoring metric, and worker
// count come from the optimize section of the configuration file.
//
// Usage:
//
//	go run cmd/quantflow-optimize/main.go -strategy sma-cross -symbols AAPL \
//	    -start 2023-01-01 -end 2024-01-01
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"quantflow/internal/backtest"
	"quantflow/internal/config"
	"quantflow/internal/domain"
	"quantflow/internal/optimize"
	"quantflow/internal/store"
	"quantflow/internal/strategy/builtins"
	"quantflow/internal/util"
)

func main() {
	strategyName := flag.String("strategy", "sma-cross", "strategy to tune")
	symbols := flag.String("symbols", "", "comma-separated symbols (required)")
	start := flag.String("start", "", "start date, YYYY-MM-DD (required)")
	end := flag.String("end", "", "end date, YYYY-MM-DD (required)")
	method := flag.String("method", "", "search method: grid, random, bayes (default from config)")
	metric := flag.String("metric", "", "ranking metric (default from config)")
	iterations := flag.Int("iterations", 0, "random/bayes candidate budget (default from config)")
	workers := flag.Int("workers", 0, "worker pool size, 0 = one per CPU (default from config)")
	seed := flag.Int64("seed", 0, "random seed (default from config)")
	top := flag.Int("top", 10, "number of ranked results to print")
	noSave := flag.Bool("no-save", false, "skip recording the sweep in SQLite")
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

	if *method != "" {
		cfg.Optimize.Method = *method
	}
	if *metric != "" {
		cfg.Optimize.Metric = *metric
	}
	if *iterations > 0 {
		cfg.Optimize.Iterations = *iterations
	}
	if *workers > 0 {
		cfg.Optimize.Workers = *workers
	}
	if *seed != 0 {
		cfg.Optimize.Seed = *seed
	}

	if *symbols == "" || *start == "" || *end == "" {
		flag.Usage()
		os.Exit(1)
	}
	startT, err := time.Parse("2006-01-02", *start)
	if err != nil {
		log.Fatalf("bad -start: %v", err)
	}
	endT, err := time.Parse("2006-01-02", *end)
	if err != nil {
		log.Fatalf("bad -end: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	registry := builtins.DefaultRegistry()
	factory, err := registry.Factory(*strategyName)
	if err != nil {
		log.Fatalf("unknown strategy: %v", err)
	}

	series, err := loadSeries(ctx, cfg.Storage.DataDir, strings.Split(*symbols, ","), startT, endT)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}

	space, err := optimize.FromConfig(cfg.Optimize.Parameters)
	if err != nil {
		log.Fatalf("parameter space: %v", err)
	}
	searcher, err := buildSearcher(cfg.Optimize, space)
	if err != nil {
		log.Fatalf("building searcher: %v", err)
	}

	opt := optimize.NewOptimizer(backtestConfig(cfg), factory, cfg.Optimize.Metric, cfg.Optimize.Workers, logger)
	started := time.Now()
	report, err := opt.Run(ctx, series, searcher)
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}

	printReport(report, *top)

	if !*noSave {
		id, err := saveSweep(ctx, cfg, *strategyName, started, report)
		if err != nil {
			log.Fatalf("saving sweep: %v", err)
		}
		fmt.Printf("\nSaved as sweep %d in %s\n", id, cfg.Storage.SQLitePath)
	}
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

func buildSearcher(oc config.OptimizeConfig, space *optimize.Space) (optimize.Searcher, error) {
	switch oc.Method {
	case "grid", "":
		return optimize.NewGridSearcher(space)
	case "random":
		return optimize.NewRandomSearcher(space, oc.Iterations, oc.Seed), nil
	case "bayes":
		return optimize.NewBayesianSearcher(space, oc.Iterations, oc.WarmStart, oc.Seed), nil
	default:
		return nil, fmt.Errorf("unknown method %q (want grid, random, or bayes)", oc.Method)
	}
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

func printReport(r *optimize.Report, top int) {
	fmt.Printf("Metric:      %s\n", r.Metric)
	fmt.Printf("Evaluations: %d (%d failed)\n", r.Evaluations, r.Failures)
	fmt.Printf("Elapsed:     %s\n", r.Elapsed.Round(time.Millisecond))

	if r.Best == nil {
		fmt.Println("\nNo candidate evaluated successfully.")
		return
	}
	fmt.Printf("Score:       mean %.4f, std %.4f, range [%.4f, %.4f]\n\n",
		r.Stats.Mean, r.Stats.Std, r.Stats.Min, r.Stats.Max)

	fmt.Printf("%-5s %-12s %s\n", "rank", "score", "parameters")
	for i, res := range r.Results {
		if i >= top {
			break
		}
		if res.Err != nil {
			fmt.Printf("%-5d %-12s %s (%v)\n", i, "failed", res.Params.Key(), res.Err)
			continue
		}
		fmt.Printf("%-5d %-12.4f %s\n", i, res.Score, res.Params.Key())
	}
}

func saveSweep(ctx context.Context, cfg *config.Config, strategyName string, started time.Time, report *optimize.Report) (int64, error) {
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	rec := store.SweepRecord{
		Strategy:    strategyName,
		Metric:      report.Metric,
		Method:      cfg.Optimize.Method,
		StartedAt:   started,
		Elapsed:     report.Elapsed,
		Evaluations: report.Evaluations,
		Failures:    report.Failures,
	}
	results := make([]store.SweepResultRecord, 0, len(report.Results))
	for i, r := range report.Results {
		rr := store.SweepResultRecord{Rank: i, Params: r.Params.Key(), Score: r.Score}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		results = append(results, rr)
	}
	return db.SaveSweep(ctx, rec, results)
}
