package optimize

import (
	"errors"
	"math"
	"math/rand"
)

// BayesianSearcher proposes candidates by expected improvement under a
// Gaussian-process surrogate fitted to the scores observed so far. The first
// batch is a random warm start; after that each call proposes one candidate.
type BayesianSearcher struct {
	space      *Space
	rnd        *rand.Rand
	iterations int
	warmStart  int
	proposed   int

	// Candidate pool size for the acquisition maximization.
	poolSize int

	lengthScale float64
	noise       float64
	xi          float64 // exploration margin in the EI acquisition
}

// NewBayesianSearcher runs `warmStart` random draws before fitting the
// surrogate, up to `iterations` candidates in total.
func NewBayesianSearcher(space *Space, iterations, warmStart int, seed int64) *BayesianSearcher {
	if warmStart < 2 {
		warmStart = 2
	}
	if warmStart > iterations {
		warmStart = iterations
	}
	return &BayesianSearcher{
		space:       space,
		rnd:         rand.New(rand.NewSource(seed)),
		iterations:  iterations,
		warmStart:   warmStart,
		poolSize:    256,
		lengthScale: 0.2,
		noise:       1e-6,
		xi:          0.01,
	}
}

// Propose returns the warm-start batch first, then one EI-maximizing
// candidate per call until the iteration budget is spent. A surrogate that
// cannot be fitted falls back to a uniform draw for that call.
func (b *BayesianSearcher) Propose(history []Result) ([]ParameterSet, error) {
	if b.proposed >= b.iterations {
		return nil, nil
	}

	if b.proposed == 0 {
		n := b.warmStart
		out := make([]ParameterSet, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, drawSet(b.space, b.rnd))
		}
		b.proposed += n
		return out, nil
	}

	next, err := b.acquire(history)
	if err != nil {
		var div *OptimizationDivergence
		if !errors.As(err, &div) {
			return nil, err
		}
		// Unstable fit: keep the sweep alive with a random draw.
		next = drawSet(b.space, b.rnd)
	}
	b.proposed++
	return []ParameterSet{next}, nil
}

// acquire fits the surrogate to successful observations and returns the pool
// candidate with the highest expected improvement.
func (b *BayesianSearcher) acquire(history []Result) (ParameterSet, error) {
	var xs [][]float64
	var ys []float64
	for _, r := range history {
		if r.Err != nil {
			continue
		}
		xs = append(xs, b.encode(r.Params))
		ys = append(ys, r.Score)
	}
	if len(xs) < 2 {
		return drawSet(b.space, b.rnd), nil
	}

	// Standardize scores so kernel hyperparameters stay scale-free.
	mean, std := scoreStats(ys)
	if std == 0 {
		return drawSet(b.space, b.rnd), nil
	}
	z := make([]float64, len(ys))
	best := math.Inf(-1)
	for i, y := range ys {
		z[i] = (y - mean) / std
		if z[i] > best {
			best = z[i]
		}
	}

	gp, err := fitGP(xs, z, b.lengthScale, b.noise)
	if err != nil {
		return nil, err
	}

	var bestSet ParameterSet
	bestEI := math.Inf(-1)
	for i := 0; i < b.poolSize; i++ {
		cand := drawSet(b.space, b.rnd)
		mu, sigma := gp.predict(b.encode(cand))
		ei := expectedImprovement(mu, sigma, best, b.xi)
		if ei > bestEI {
			bestEI = ei
			bestSet = cand
		}
	}
	if bestSet == nil {
		return nil, &OptimizationDivergence{Stage: "acquisition", Detail: "no finite expected improvement"}
	}
	return bestSet, nil
}

// encode maps a parameter set into the unit hypercube in declaration order.
func (b *BayesianSearcher) encode(ps ParameterSet) []float64 {
	params := b.space.Params()
	x := make([]float64, len(params))
	for i, p := range params {
		x[i] = p.unit(ps[p.Name])
	}
	return x
}

// ---------------------------------------------------------------------------
// Gaussian process surrogate
// ---------------------------------------------------------------------------

type gaussianProcess struct {
	xs          [][]float64
	alpha       []float64
	chol        [][]float64
	lengthScale float64
	noise       float64
}

// fitGP factors the kernel matrix and precomputes the weight vector. Jitter
// is added and the factorization retried when the matrix is not positive
// definite; persistent failure is reported as OptimizationDivergence.
func fitGP(xs [][]float64, y []float64, lengthScale, noise float64) (*gaussianProcess, error) {
	n := len(xs)
	k := make([][]float64, n)
	for i := range k {
		k[i] = make([]float64, n)
		for j := range k[i] {
			k[i][j] = rbf(xs[i], xs[j], lengthScale)
		}
	}

	jitter := noise
	var chol [][]float64
	for attempt := 0; attempt < 5; attempt++ {
		for i := 0; i < n; i++ {
			k[i][i] = 1 + jitter
		}
		var ok bool
		chol, ok = cholesky(k)
		if ok {
			break
		}
		chol = nil
		jitter *= 100
	}
	if chol == nil {
		return nil, &OptimizationDivergence{Stage: "surrogate fit", Detail: "kernel matrix not positive definite"}
	}

	alpha := cholSolve(chol, y)
	return &gaussianProcess{xs: xs, alpha: alpha, chol: chol, lengthScale: lengthScale, noise: jitter}, nil
}

// predict returns the posterior mean and standard deviation at x.
func (g *gaussianProcess) predict(x []float64) (mu, sigma float64) {
	n := len(g.xs)
	kv := make([]float64, n)
	for i := range g.xs {
		kv[i] = rbf(x, g.xs[i], g.lengthScale)
	}

	for i := range kv {
		mu += kv[i] * g.alpha[i]
	}

	v := forwardSolve(g.chol, kv)
	variance := 1 + g.noise
	for _, vi := range v {
		variance -= vi * vi
	}
	if variance < 0 {
		variance = 0
	}
	return mu, math.Sqrt(variance)
}

func rbf(a, b []float64, lengthScale float64) float64 {
	var d2 float64
	for i := range a {
		d := a[i] - b[i]
		d2 += d * d
	}
	return math.Exp(-d2 / (2 * lengthScale * lengthScale))
}

// cholesky returns the lower-triangular factor of a symmetric matrix, or
// false when the matrix is not positive definite.
func cholesky(a [][]float64) ([][]float64, bool) {
	n := len(a)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil, false
				}
				l[i][i] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l, true
}

// forwardSolve solves L v = b for lower-triangular L.
func forwardSolve(l [][]float64, b []float64) []float64 {
	n := len(b)
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for k := 0; k < i; k++ {
			sum -= l[i][k] * v[k]
		}
		v[i] = sum / l[i][i]
	}
	return v
}

// cholSolve solves (L L^T) x = b.
func cholSolve(l [][]float64, b []float64) []float64 {
	v := forwardSolve(l, b)
	n := len(b)
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := v[i]
		for k := i + 1; k < n; k++ {
			sum -= l[k][i] * x[k]
		}
		x[i] = sum / l[i][i]
	}
	return x
}

// expectedImprovement is the standard EI acquisition for maximization.
func expectedImprovement(mu, sigma, best, xi float64) float64 {
	if sigma == 0 {
		if mu > best+xi {
			return mu - best - xi
		}
		return 0
	}
	z := (mu - best - xi) / sigma
	return (mu-best-xi)*normCDF(z) + sigma*normPDF(z)
}

func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func normPDF(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}

func scoreStats(ys []float64) (mean, std float64) {
	for _, y := range ys {
		mean += y
	}
	mean /= float64(len(ys))
	for _, y := range ys {
		d := y - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(ys)))
	return mean, std
}

var _ Searcher = (*BayesianSearcher)(nil)
