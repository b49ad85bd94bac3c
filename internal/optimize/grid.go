package optimize

import "fmt"

// GridSearcher proposes the full Cartesian product of the parameter grid in
// one batch, then ends the sweep. For a space of N and M values across two
// parameters it yields exactly N*M distinct candidates, in lexicographic
// order of the declared parameters.
type GridSearcher struct {
	grid []ParameterSet
	done bool
}

// NewGridSearcher enumerates the grid eagerly so invalid spaces fail before
// any evaluation runs. Real parameters must declare a step.
func NewGridSearcher(space *Space) (*GridSearcher, error) {
	params := space.Params()
	values := make([][]float64, len(params))
	total := 1
	for i, p := range params {
		vs, err := p.values()
		if err != nil {
			return nil, err
		}
		if len(vs) == 0 {
			return nil, fmt.Errorf("parameter %q: empty grid", p.Name)
		}
		values[i] = vs
		total *= len(vs)
	}

	grid := make([]ParameterSet, 0, total)
	idx := make([]int, len(params))
	for {
		ps := make(ParameterSet, len(params))
		for i, p := range params {
			ps[p.Name] = values[i][idx[i]]
		}
		grid = append(grid, ps)

		// Advance the rightmost index, carrying leftward.
		k := len(idx) - 1
		for k >= 0 {
			idx[k]++
			if idx[k] < len(values[k]) {
				break
			}
			idx[k] = 0
			k--
		}
		if k < 0 {
			break
		}
	}

	return &GridSearcher{grid: grid}, nil
}

// Size returns the number of grid points.
func (g *GridSearcher) Size() int {
	return len(g.grid)
}

// Propose returns the whole grid on the first call and nothing afterwards.
func (g *GridSearcher) Propose(_ []Result) ([]ParameterSet, error) {
	if g.done {
		return nil, nil
	}
	g.done = true
	return g.grid, nil
}
