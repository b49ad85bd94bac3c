package builtins

import (
	"fmt"
	"sort"
)

// paramOr reads a named parameter with a default, tracking which keys were
// consumed so factories can reject unknown names.
func paramOr(params map[string]float64, seen map[string]bool, name string, def float64) float64 {
	if v, ok := params[name]; ok {
		seen[name] = true
		return v
	}
	return def
}

// rejectUnknown returns an error naming the first parameter no factory field
// consumed.
func rejectUnknown(params map[string]float64, seen map[string]bool) error {
	names := make([]string, 0, len(params))
	for name := range params {
		if !seen[name] {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return fmt.Errorf("unknown parameter %q", names[0])
}
