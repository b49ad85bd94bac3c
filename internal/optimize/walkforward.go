package optimize

import (
	"context"
	"fmt"
	"time"

	"quantflow/internal/backtest"
)

// WindowResult records one walk-forward window: the parameters chosen on the
// train slice and their out-of-sample performance on the test slice.
type WindowResult struct {
	Index      int
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
	BestParams  ParameterSet
	TrainScore  float64
	TestScore   float64
	TestSummary backtest.Summary
}

// WalkForwardReport aggregates all windows of a walk-forward run.
type WalkForwardReport struct {
	Metric       string
	Windows      []WindowResult
	AvgTestScore float64
	// Consistency is the fraction of windows whose out-of-sample score kept
	// at least half of the in-sample score. A low value signals overfitting.
	Consistency float64
	// ParamStability is the fraction of windows that selected the modal
	// parameter set. Low stability means the tuned parameters are regime
	// dependent.
	ParamStability float64
}

// WalkForwardSpec sets the rolling window sizes, in replay steps.
type WalkForwardSpec struct {
	TrainBars int
	TestBars  int
	StepBars  int
}

// WalkForward rolls train/test windows across the series. For each window an
// inner sweep on the train slice picks the best parameters, which are then
// evaluated once on the adjacent test slice. newSearcher supplies a fresh
// searcher per window since searchers carry state.
func (o *Optimizer) WalkForward(ctx context.Context, series *backtest.Series, spec WalkForwardSpec, newSearcher func() Searcher) (*WalkForwardReport, error) {
	if spec.TrainBars <= 0 || spec.TestBars <= 0 {
		return nil, fmt.Errorf("walk-forward needs positive train and test sizes, got %d/%d", spec.TrainBars, spec.TestBars)
	}
	step := spec.StepBars
	if step <= 0 {
		step = spec.TestBars
	}
	if series.NumSteps() < spec.TrainBars+spec.TestBars {
		return nil, fmt.Errorf("series has %d steps, need at least %d for one window",
			series.NumSteps(), spec.TrainBars+spec.TestBars)
	}

	report := &WalkForwardReport{Metric: o.metric}
	kept := 0

	for start := 0; start+spec.TrainBars+spec.TestBars <= series.NumSteps(); start += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		train := series.Slice(start, start+spec.TrainBars)
		test := series.Slice(start+spec.TrainBars, start+spec.TrainBars+spec.TestBars)

		sweep, err := o.Run(ctx, train, newSearcher())
		if err != nil {
			return nil, fmt.Errorf("window %d train sweep: %w", len(report.Windows), err)
		}
		if sweep.Best == nil {
			return nil, fmt.Errorf("window %d: no candidate evaluated successfully", len(report.Windows))
		}

		oos := o.evaluate(ctx, test, sweep.Best.Params)
		if oos.Err != nil {
			return nil, fmt.Errorf("window %d test evaluation: %w", len(report.Windows), oos.Err)
		}

		trainSteps := train.Steps()
		testSteps := test.Steps()
		w := WindowResult{
			Index:       len(report.Windows),
			TrainStart:  trainSteps[0],
			TrainEnd:    trainSteps[len(trainSteps)-1],
			TestStart:   testSteps[0],
			TestEnd:     testSteps[len(testSteps)-1],
			BestParams:  sweep.Best.Params,
			TrainScore:  sweep.Best.Score,
			TestScore:   oos.Score,
			TestSummary: oos.Summary,
		}
		report.Windows = append(report.Windows, w)
		report.AvgTestScore += w.TestScore
		if w.TrainScore <= 0 && w.TestScore >= w.TrainScore {
			kept++
		} else if w.TrainScore > 0 && w.TestScore >= 0.5*w.TrainScore {
			kept++
		}

		o.log.Info("walk-forward window done",
			"window", w.Index,
			"train_score", w.TrainScore,
			"test_score", w.TestScore,
			"params", w.BestParams.Key())
	}

	n := len(report.Windows)
	report.AvgTestScore /= float64(n)
	report.Consistency = float64(kept) / float64(n)

	counts := make(map[string]int, n)
	modal := 0
	for _, w := range report.Windows {
		counts[w.BestParams.Key()]++
		if counts[w.BestParams.Key()] > modal {
			modal = counts[w.BestParams.Key()]
		}
	}
	report.ParamStability = float64(modal) / float64(n)

	return report, nil
}
