package tier

import "fmt"

// LimitKind tags the limit variant for a (tier, feature) cell.
type LimitKind int

const (
	// LimitNumeric caps consumption at Count units per billing period.
	LimitNumeric LimitKind = iota
	// LimitUnlimited imposes no cap; usage is still metered for reporting.
	LimitUnlimited
	// LimitBoolean grants or withholds the feature outright, no counting.
	LimitBoolean
)

// Limit is the tagged union `Unlimited | Boolean(bool) | Numeric(count)`.
type Limit struct {
	Kind    LimitKind
	Count   int64
	Enabled bool
}

// Count builds a numeric limit of n units per period.
func Count(n int64) Limit {
	return Limit{Kind: LimitNumeric, Count: n}
}

// Unlimited builds an uncapped limit.
func Unlimited() Limit {
	return Limit{Kind: LimitUnlimited}
}

// Flag builds a boolean limit.
func Flag(enabled bool) Limit {
	return Limit{Kind: LimitBoolean, Enabled: enabled}
}

func (l Limit) String() string {
	switch l.Kind {
	case LimitUnlimited:
		return "unlimited"
	case LimitBoolean:
		if l.Enabled {
			return "enabled"
		}
		return "disabled"
	default:
		return fmt.Sprintf("%d", l.Count)
	}
}
