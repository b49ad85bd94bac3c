package optimize

import "math/rand"

// RandomSearcher draws a fixed number of candidates uniformly from the space
// using a seeded generator, so a sweep is reproducible for a given seed.
type RandomSearcher struct {
	space      *Space
	rnd        *rand.Rand
	iterations int
	done       bool
}

// NewRandomSearcher draws `iterations` candidates from the space. The same
// seed always yields the same candidates in the same order.
func NewRandomSearcher(space *Space, iterations int, seed int64) *RandomSearcher {
	return &RandomSearcher{
		space:      space,
		rnd:        rand.New(rand.NewSource(seed)),
		iterations: iterations,
	}
}

// Propose returns all draws in one batch, then ends the sweep. Duplicate
// draws are possible here; the optimizer deduplicates before evaluating.
func (r *RandomSearcher) Propose(_ []Result) ([]ParameterSet, error) {
	if r.done || r.iterations <= 0 {
		return nil, nil
	}
	r.done = true

	out := make([]ParameterSet, 0, r.iterations)
	for i := 0; i < r.iterations; i++ {
		out = append(out, drawSet(r.space, r.rnd))
	}
	return out, nil
}

// drawSet samples one value per parameter.
func drawSet(space *Space, rnd *rand.Rand) ParameterSet {
	ps := make(ParameterSet, len(space.Params()))
	for _, p := range space.Params() {
		ps[p.Name] = p.sample(rnd)
	}
	return ps
}
