// Package tier defines the closed set of subscription tiers and gated
// features, the per-tier limit matrix, and the overage pricing table.
package tier

import "strings"

// Tier is a named subscription plan. Tiers are totally ordered
// (FREE < PRO < ENTERPRISE) for "requires at least" checks.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

var tierRank = map[Tier]int{
	TierFree:       0,
	TierPro:        1,
	TierEnterprise: 2,
}

// Tiers returns all tiers in ascending order.
func Tiers() []Tier {
	return []Tier{TierFree, TierPro, TierEnterprise}
}

// Known reports whether t is one of the closed enumeration.
func (t Tier) Known() bool {
	_, ok := tierRank[t]
	return ok
}

// AtLeast reports whether t grants at least what other grants. An unknown
// tier ranks below FREE so a corrupted value never widens access.
func (t Tier) AtLeast(other Tier) bool {
	rank, ok := tierRank[t]
	if !ok {
		rank = -1
	}
	otherRank, otherOK := tierRank[other]
	if !otherOK {
		otherRank = -1
	}
	return rank >= otherRank
}

// Parse maps a stored tier value to the enumeration, defaulting to FREE for
// anything unrecognized.
func Parse(raw string) Tier {
	t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	if t.Known() {
		return t
	}
	return TierFree
}
