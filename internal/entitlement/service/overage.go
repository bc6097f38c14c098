package service

import "github.com/smallbiznis/tradeboard/internal/tier"

// Quote prices the over-limit portion of a usage transition. All amounts
// are integer units and integer cents.
type Quote struct {
	// Units newly over the limit in this transition.
	Units int64
	// BillableUnits is Units minus whatever the grace allowance absorbs.
	BillableUnits int64
	// Cost in cents, BillableUnits * PricePerUnit.
	Cost int64
}

// quoteOverage prices moving usage from before to after against a numeric
// limit. Billing is marginal: only units this transition pushes past the
// grace allowance are charged, so concurrent consumers each pay exactly
// for the units they added, regardless of interleaving.
func quoteOverage(rate tier.OverageRate, before, after, limit int64) Quote {
	overBefore := max64(0, before-limit)
	overAfter := max64(0, after-limit)

	billableBefore := max64(0, overBefore-rate.GracePeriod)
	billableAfter := max64(0, overAfter-rate.GracePeriod)

	q := Quote{
		Units:         overAfter - overBefore,
		BillableUnits: billableAfter - billableBefore,
	}
	if q.Units < 0 {
		q.Units = 0
	}
	if q.BillableUnits < 0 {
		q.BillableUnits = 0
	}
	q.Cost = q.BillableUnits * rate.PricePerUnit
	return q
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
