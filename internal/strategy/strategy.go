// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for constructing parameterised strategy instances.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"quantflow/internal/domain"
)

// History is the causal market-data view handed to a strategy: it contains
// only bars with timestamps at or before the current replay step.
type History interface {
	// Symbols returns the symbols present in the window, sorted.
	Symbols() []string

	// Bars returns the bars for a symbol in ascending timestamp order. The
	// returned slice must not be mutated.
	Bars(symbol string) []domain.Bar
}

// PortfolioView is a read-only view of portfolio state used for sizing
// decisions.
type PortfolioView interface {
	// Cash returns currently uninvested capital.
	Cash() float64

	// TotalValue returns cash plus all position values at the latest marks.
	TotalValue() float64

	// Position returns the holding for a symbol. The second return value
	// reports whether a position exists.
	Position(symbol string) (domain.Position, bool)
}

// Strategy maps a causal data window and portfolio state to trading signals.
// Implementations must be pure over their inputs: no retained references to
// the window, no mutation of portfolio state.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// GenerateSignals returns zero or one signal per symbol for the current
	// step. Returning no signal for a symbol means hold.
	GenerateSignals(ctx context.Context, history History, portfolio PortfolioView) ([]domain.Signal, error)
}

// Factory constructs a strategy instance from a parameter assignment,
// validating every recognised parameter and its range. Unknown parameter
// names are an error.
type Factory func(params map[string]float64) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a strategy factory to the registry under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Create builds a strategy instance by name with the given parameters.
func (r *Registry) Create(name string, params map[string]float64) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return f(params)
}

// Factory returns the registered factory by name, for callers that build
// many instances with varying parameters.
func (r *Registry) Factory(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return f, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
