package enums

import "fmt"

// StockCheckMode selects what Add compares against live stock.
// Requested compares only the quantity being added; Combined compares the
// line's resulting quantity (in-cart + requested).
type StockCheckMode string

const (
	StockCheckRequested StockCheckMode = "requested"
	StockCheckCombined  StockCheckMode = "combined"
)

// String implements fmt.Stringer.
func (m StockCheckMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known StockCheckMode.
func (m StockCheckMode) IsValid() bool {
	return m == StockCheckRequested || m == StockCheckCombined
}

// ParseStockCheckMode converts raw input into a StockCheckMode.
func ParseStockCheckMode(value string) (StockCheckMode, error) {
	m := StockCheckMode(value)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid stock check mode %q", value)
	}
	return m, nil
}
