package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// OverageEntry is one row of the overage pricing table: how much a tier pays
// per unit consumed beyond a feature's numeric limit, after a grace
// allowance of units. A (tier, feature) pair with no entry does not offer
// overage at all.
type OverageEntry struct {
	Tier         string `mapstructure:"tier"`
	Feature      string `mapstructure:"feature"`
	PricePerUnit int64  `mapstructure:"pricePerUnit"`
	GracePeriod  int64  `mapstructure:"gracePeriod"`
}

// EntitlementConfig is the file-overridable portion of the entitlement
// engine: overage pricing. Tier limits stay compiled in.
type EntitlementConfig struct {
	Overage []OverageEntry `mapstructure:"overage"`
}

// EntitlementConfigHolder serves the current config and hot-reloads it when
// the file changes. Invalid updates are ignored, the previous table stays
// live.
type EntitlementConfigHolder struct {
	current atomic.Value // holds EntitlementConfig
}

// NewEntitlementConfigHolder reads entitlements.yml if present and watches
// it for changes. With no file, the holder serves an empty override and the
// compiled-in defaults apply.
func NewEntitlementConfigHolder() (*EntitlementConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("entitlements")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tradeboard/config")
	v.AddConfigPath("/etc/tradeboard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TRADEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &EntitlementConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(EntitlementConfig{})
		return holder, nil
	}

	var cfg EntitlementConfig
	if err := v.UnmarshalKey("entitlements", &cfg); err != nil {
		return nil, err
	}
	if err := validateEntitlementConfig(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EntitlementConfig
		if err := v.UnmarshalKey("entitlements", &updated); err != nil {
			log.Printf("[entitlement-config] reload failed: %v", err)
			return
		}
		if err := validateEntitlementConfig(updated); err != nil {
			log.Printf("[entitlement-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[entitlement-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Get returns the currently active config.
func (h *EntitlementConfigHolder) Get() EntitlementConfig {
	return h.current.Load().(EntitlementConfig)
}

func validateEntitlementConfig(cfg EntitlementConfig) error {
	for _, entry := range cfg.Overage {
		if strings.TrimSpace(entry.Tier) == "" {
			return errors.New("entitlements.overage: tier cannot be empty")
		}
		if strings.TrimSpace(entry.Feature) == "" {
			return errors.New("entitlements.overage: feature cannot be empty")
		}
		if entry.PricePerUnit < 0 {
			return errors.New("entitlements.overage: pricePerUnit cannot be negative")
		}
		if entry.GracePeriod < 0 {
			return errors.New("entitlements.overage: gracePeriod cannot be negative")
		}
	}
	return nil
}
