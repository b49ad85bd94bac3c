package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"quantflow/internal/backtest"
	"quantflow/internal/strategy"
)

// Searcher proposes candidate parameter sets given the results observed so
// far. An empty proposal ends the sweep.
type Searcher interface {
	Propose(history []Result) ([]ParameterSet, error)
}

var (
	_ Searcher = (*GridSearcher)(nil)
	_ Searcher = (*RandomSearcher)(nil)
)

// Result is the outcome of evaluating one parameter set. Err is set when the
// candidate could not be evaluated; Score is only meaningful when Err is nil.
type Result struct {
	Params  ParameterSet
	Score   float64
	Summary backtest.Summary
	Err     error
}

// Report summarizes a completed sweep. Results are ranked by score,
// descending, failures last.
type Report struct {
	Metric      string
	Results     []Result
	Best        *Result
	Evaluations int
	Failures    int
	Elapsed     time.Duration
	Stats       ScoreStats
}

// ScoreStats aggregates the scores of successful evaluations.
type ScoreStats struct {
	Mean, Std   float64
	Min, Max    float64
	SuccessRate float64 // successful / total evaluations
}

// Optimizer evaluates candidate parameter sets against a fixed bar series.
// Each evaluation is an independent replay with its own ledger; candidates in
// a batch run concurrently on a bounded worker pool and results flow over a
// channel to a single collector, so no evaluation state is shared.
type Optimizer struct {
	cfg     backtest.Config
	factory strategy.Factory
	metric  string
	workers int
	log     *slog.Logger
}

// NewOptimizer builds an optimizer scoring candidates by the named metric.
// Zero workers means one per CPU. A nil logger falls back to slog.Default().
func NewOptimizer(cfg backtest.Config, factory strategy.Factory, metric string, workers int, log *slog.Logger) *Optimizer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Optimizer{cfg: cfg, factory: factory, metric: metric, workers: workers, log: log}
}

// Run drives the searcher to exhaustion over the series. Duplicate candidates
// are evaluated once; a failed evaluation is recorded and never aborts the
// sweep. Context cancellation stops dispatching and returns the context
// error along with the partial work discarded.
func (o *Optimizer) Run(ctx context.Context, series *backtest.Series, searcher Searcher) (*Report, error) {
	started := time.Now()
	var history []Result
	seen := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := searcher.Propose(history)
		if err != nil {
			return nil, fmt.Errorf("proposing candidates: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var fresh []ParameterSet
		for _, ps := range batch {
			key := ps.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			fresh = append(fresh, ps)
		}
		if len(fresh) == 0 {
			continue
		}

		results, err := o.evaluateBatch(ctx, series, fresh)
		if err != nil {
			return nil, err
		}
		history = append(history, results...)
	}

	return o.report(history, started), nil
}

// evaluateBatch fans candidates out to the worker pool and collects results
// in one goroutine. Result order within a batch is not significant.
func (o *Optimizer) evaluateBatch(ctx context.Context, series *backtest.Series, batch []ParameterSet) ([]Result, error) {
	jobs := make(chan ParameterSet)
	out := make(chan Result)

	var wg sync.WaitGroup
	workers := o.workers
	if workers > len(batch) {
		workers = len(batch)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ps := range jobs {
				out <- o.evaluate(ctx, series, ps)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ps := range batch {
			select {
			case jobs <- ps:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]Result, 0, len(batch))
	for r := range out {
		if r.Err != nil {
			o.log.Warn("candidate evaluation failed", "params", r.Params.Key(), "err", r.Err)
		}
		results = append(results, r)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// evaluate runs one full replay for a candidate and scores its summary.
func (o *Optimizer) evaluate(ctx context.Context, series *backtest.Series, ps ParameterSet) Result {
	strat, err := o.factory(ps)
	if err != nil {
		return Result{Params: ps, Err: fmt.Errorf("building strategy: %w", err)}
	}

	engine := backtest.New(o.cfg, o.log)
	res, err := engine.Run(ctx, series, strat)
	if err != nil {
		return Result{Params: ps, Err: err}
	}

	score, ok := res.Summary.Metric(o.metric)
	if !ok {
		return Result{Params: ps, Err: fmt.Errorf("unknown metric %q", o.metric)}
	}
	if math.IsNaN(score) {
		return Result{Params: ps, Err: &OptimizationDivergence{Stage: "scoring", Detail: "metric is NaN"}}
	}
	return Result{Params: ps, Score: score, Summary: res.Summary}
}

func (o *Optimizer) report(history []Result, started time.Time) *Report {
	sort.SliceStable(history, func(i, j int) bool {
		if (history[i].Err == nil) != (history[j].Err == nil) {
			return history[i].Err == nil
		}
		return history[i].Score > history[j].Score
	})

	rep := &Report{
		Metric:      o.metric,
		Results:     history,
		Evaluations: len(history),
		Elapsed:     time.Since(started),
	}
	var scores []float64
	for i := range history {
		if history[i].Err != nil {
			rep.Failures++
			continue
		}
		scores = append(scores, history[i].Score)
	}
	if len(history) > 0 && history[0].Err == nil {
		rep.Best = &history[0]
	}
	if len(scores) > 0 {
		mean, std := scoreStats(scores)
		rep.Stats = ScoreStats{
			Mean:        mean,
			Std:         std,
			Min:         scores[len(scores)-1], // ranked descending
			Max:         scores[0],
			SuccessRate: float64(len(scores)) / float64(len(history)),
		}
	}
	return rep
}
