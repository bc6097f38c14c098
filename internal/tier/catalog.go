package tier

// Catalog is the static tier × feature → limit matrix, built once at
// process start and immutable thereafter.
type Catalog struct {
	limits map[Tier]map[Feature]Limit
}

// NewCatalog builds the limit matrix.
func NewCatalog() *Catalog {
	return &Catalog{
		limits: map[Tier]map[Feature]Limit{
			TierFree: {
				FeatureJobPostings:       Count(1),
				FeatureTeamMembers:       Count(1),
				FeatureCalculatorExports: Count(3),
				FeatureBoostCredits:      Count(0),
				FeatureLeadAccess:        Flag(false),
				FeatureAnalytics:         Flag(false),
				FeatureCustomBranding:    Flag(false),
				FeatureAPIAccess:         Flag(false),
				FeaturePrioritySupport:   Flag(false),
			},
			TierPro: {
				FeatureJobPostings:       Count(25),
				FeatureTeamMembers:       Count(5),
				FeatureCalculatorExports: Count(50),
				FeatureBoostCredits:      Count(10),
				FeatureLeadAccess:        Flag(true),
				FeatureAnalytics:         Flag(true),
				FeatureCustomBranding:    Flag(false),
				FeatureAPIAccess:         Flag(true),
				FeaturePrioritySupport:   Flag(false),
			},
			TierEnterprise: {
				FeatureJobPostings:       Unlimited(),
				FeatureTeamMembers:       Unlimited(),
				FeatureCalculatorExports: Unlimited(),
				FeatureBoostCredits:      Count(100),
				FeatureLeadAccess:        Flag(true),
				FeatureAnalytics:         Flag(true),
				FeatureCustomBranding:    Flag(true),
				FeatureAPIAccess:         Flag(true),
				FeaturePrioritySupport:   Flag(true),
			},
		},
	}
}

// Lookup returns the limit for a (tier, feature) pair. An unknown tier
// falls back to FREE's row, the most conservative table, so a corrupted
// tier on a paying account never defaults to an expansive policy. An
// unknown feature is a disabled boolean.
func (c *Catalog) Lookup(t Tier, f Feature) Limit {
	row, ok := c.limits[t]
	if !ok {
		row = c.limits[TierFree]
	}
	limit, ok := row[f]
	if !ok {
		return Flag(false)
	}
	return limit
}
