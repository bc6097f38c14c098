package tier

import (
	"github.com/smallbiznis/tradeboard/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("tier",
	fx.Provide(NewCatalog),
	fx.Provide(config.NewEntitlementConfigHolder),
	fx.Provide(ProvideOverageTable),
)

// OverageLookup resolves the current overage table on every call so config
// hot reloads take effect without restarting.
type OverageLookup func() OverageTable

// ProvideOverageTable validates the file config once at startup and returns
// a lookup that re-merges on each call.
func ProvideOverageTable(holder *config.EntitlementConfigHolder) (OverageLookup, error) {
	if _, err := OverageTableFromConfig(holder.Get()); err != nil {
		return nil, err
	}
	return func() OverageTable {
		table, err := OverageTableFromConfig(holder.Get())
		if err != nil {
			// The holder rejects invalid reloads, so this only trips on the
			// validated startup config.
			return DefaultOverageTable()
		}
		return table
	}, nil
}

// StaticOverageLookup wraps a fixed table, for tests and tools.
func StaticOverageLookup(table OverageTable) OverageLookup {
	return func() OverageTable { return table }
}
