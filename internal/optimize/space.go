package optimize

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"quantflow/internal/config"
)

// ParameterSet is one concrete assignment of values to tunable parameters.
// It is passed straight to a strategy factory.
type ParameterSet map[string]float64

// Key returns a canonical string for deduplication: parameter names sorted,
// values formatted with full precision.
func (p ParameterSet) Key() string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(p[name], 'g', -1, 64))
	}
	return b.String()
}

// Clone returns an independent copy.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParamKind distinguishes how a parameter's domain is described.
type ParamKind int

const (
	KindChoice ParamKind = iota
	KindInt
	KindReal
)

// Param declares one tunable parameter and its search domain.
type Param struct {
	Name     string
	Kind     ParamKind
	Choices  []float64 // KindChoice
	Min, Max float64   // KindInt, KindReal
	Step     float64   // optional grid step for KindReal
	LogScale bool      // sample on a log scale (Min must be positive)
}

// Space is a validated set of parameters. Searchers draw candidates from it.
type Space struct {
	params []Param
}

// NewSpace validates the parameter declarations once up front so searchers
// never have to.
func NewSpace(params []Param) (*Space, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("parameter space is empty")
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter with empty name")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true

		switch p.Kind {
		case KindChoice:
			if len(p.Choices) == 0 {
				return nil, fmt.Errorf("parameter %q: choice kind with no choices", p.Name)
			}
		case KindInt, KindReal:
			if p.Min > p.Max {
				return nil, fmt.Errorf("parameter %q: min %v > max %v", p.Name, p.Min, p.Max)
			}
			if p.LogScale && p.Min <= 0 {
				return nil, fmt.Errorf("parameter %q: log scale requires positive min, got %v", p.Name, p.Min)
			}
			if p.Step < 0 {
				return nil, fmt.Errorf("parameter %q: negative step %v", p.Name, p.Step)
			}
		default:
			return nil, fmt.Errorf("parameter %q: unknown kind %d", p.Name, p.Kind)
		}
	}
	return &Space{params: params}, nil
}

// FromConfig builds a Space from the configuration file representation.
func FromConfig(pcs []config.ParamConfig) (*Space, error) {
	params := make([]Param, 0, len(pcs))
	for _, pc := range pcs {
		p := Param{
			Name:     pc.Name,
			Choices:  pc.Choices,
			Min:      pc.Min,
			Max:      pc.Max,
			Step:     pc.Step,
			LogScale: pc.LogScale,
		}
		switch pc.Kind {
		case "choice":
			p.Kind = KindChoice
		case "int":
			p.Kind = KindInt
		case "real":
			p.Kind = KindReal
		default:
			return nil, fmt.Errorf("parameter %q: unknown kind %q", pc.Name, pc.Kind)
		}
		params = append(params, p)
	}
	return NewSpace(params)
}

// Params returns the parameter declarations in declaration order.
func (s *Space) Params() []Param {
	return s.params
}

// values enumerates the finite grid points of a parameter. Real parameters
// need an explicit step to be enumerable.
func (p Param) values() ([]float64, error) {
	switch p.Kind {
	case KindChoice:
		return p.Choices, nil
	case KindInt:
		step := p.Step
		if step <= 0 {
			step = 1
		}
		var out []float64
		for v := p.Min; v <= p.Max+1e-9; v += step {
			out = append(out, math.Round(v))
		}
		return out, nil
	case KindReal:
		if p.Step <= 0 {
			return nil, fmt.Errorf("parameter %q: real kind needs a step to enumerate", p.Name)
		}
		var out []float64
		for v := p.Min; v <= p.Max+p.Step*1e-9; v += p.Step {
			out = append(out, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("parameter %q: unknown kind %d", p.Name, p.Kind)
}

// sample draws one value uniformly from the parameter's domain.
func (p Param) sample(rnd *rand.Rand) float64 {
	switch p.Kind {
	case KindChoice:
		return p.Choices[rnd.Intn(len(p.Choices))]
	case KindInt:
		lo, hi := int64(p.Min), int64(p.Max)
		if hi <= lo {
			return float64(lo)
		}
		return float64(lo + rnd.Int63n(hi-lo+1))
	case KindReal:
		if p.LogScale {
			lo, hi := math.Log(p.Min), math.Log(p.Max)
			return math.Exp(lo + rnd.Float64()*(hi-lo))
		}
		return p.Min + rnd.Float64()*(p.Max-p.Min)
	}
	return 0
}

// unit maps a concrete value into [0, 1] for distance computations in the
// surrogate model.
func (p Param) unit(v float64) float64 {
	switch p.Kind {
	case KindChoice:
		if len(p.Choices) <= 1 {
			return 0
		}
		for i, c := range p.Choices {
			if c == v {
				return float64(i) / float64(len(p.Choices)-1)
			}
		}
		return 0
	case KindInt, KindReal:
		if p.Max <= p.Min {
			return 0
		}
		if p.LogScale {
			return (math.Log(v) - math.Log(p.Min)) / (math.Log(p.Max) - math.Log(p.Min))
		}
		return (v - p.Min) / (p.Max - p.Min)
	}
	return 0
}
