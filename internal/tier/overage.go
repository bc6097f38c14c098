package tier

import (
	"fmt"

	"github.com/smallbiznis/tradeboard/internal/config"
)

// OverageRate prices consumption beyond a numeric limit. GracePeriod is a
// count of overage units excluded from billing, not a time duration.
type OverageRate struct {
	PricePerUnit int64 // minor currency units
	GracePeriod  int64
}

// OverageTable maps (tier, feature) to its overage rate. Pairs without an
// entry do not offer overage; requests beyond the limit are hard-denied.
type OverageTable map[Tier]map[Feature]OverageRate

// DefaultOverageTable returns the compiled-in pricing.
func DefaultOverageTable() OverageTable {
	return OverageTable{
		TierPro: {
			FeatureJobPostings:       {PricePerUnit: 2500, GracePeriod: 2},
			FeatureCalculatorExports: {PricePerUnit: 500, GracePeriod: 5},
			FeatureBoostCredits:      {PricePerUnit: 1500, GracePeriod: 0},
		},
		TierEnterprise: {
			FeatureBoostCredits: {PricePerUnit: 1000, GracePeriod: 5},
		},
	}
}

// OverageTableFromConfig merges file-provided entries over the defaults.
// Entries naming an unknown tier or feature are rejected rather than
// silently dropped.
func OverageTableFromConfig(cfg config.EntitlementConfig) (OverageTable, error) {
	table := DefaultOverageTable()
	for _, entry := range cfg.Overage {
		t := Tier(entry.Tier)
		if !t.Known() {
			return nil, fmt.Errorf("overage config: unknown tier %q", entry.Tier)
		}
		f, ok := ParseFeature(entry.Feature)
		if !ok {
			return nil, fmt.Errorf("overage config: unknown feature %q", entry.Feature)
		}
		if table[t] == nil {
			table[t] = map[Feature]OverageRate{}
		}
		table[t][f] = OverageRate{
			PricePerUnit: entry.PricePerUnit,
			GracePeriod:  entry.GracePeriod,
		}
	}
	return table, nil
}

// Lookup returns the rate for a (tier, feature) pair.
func (o OverageTable) Lookup(t Tier, f Feature) (OverageRate, bool) {
	row, ok := o[t]
	if !ok {
		return OverageRate{}, false
	}
	rate, ok := row[f]
	return rate, ok
}
