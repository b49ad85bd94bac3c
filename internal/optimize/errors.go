package optimize

import "fmt"

// OptimizationDivergence reports a numerically unstable surrogate fit or a
// non-finite candidate score. The affected candidate is skipped; the sweep
// continues.
type OptimizationDivergence struct {
	Stage  string
	Detail string
}

func (e *OptimizationDivergence) Error() string {
	return fmt.Sprintf("optimization diverged during %s: %s", e.Stage, e.Detail)
}
