package backtest

import "fmt"

// DataIntegrityError reports malformed input bar data: duplicate or
// non-monotonic timestamps, or an empty series. It is fatal and raised
// before any replay step executes.
type DataIntegrityError struct {
	Symbol string
	Index  int
	Reason string
}

func (e *DataIntegrityError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("data integrity: %s", e.Reason)
	}
	return fmt.Sprintf("data integrity: %s: bar %d: %s", e.Symbol, e.Index, e.Reason)
}
