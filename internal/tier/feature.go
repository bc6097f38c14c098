package tier

import "strings"

// Feature is a gated capability or countable resource.
type Feature string

const (
	FeatureJobPostings       Feature = "job_postings"
	FeatureTeamMembers       Feature = "team_members"
	FeatureCalculatorExports Feature = "calculator_exports"
	FeatureBoostCredits      Feature = "boost_credits"
	FeatureLeadAccess        Feature = "lead_access"
	FeatureAnalytics         Feature = "analytics"
	FeatureCustomBranding    Feature = "custom_branding"
	FeatureAPIAccess         Feature = "api_access"
	FeaturePrioritySupport   Feature = "priority_support"
)

var allFeatures = []Feature{
	FeatureJobPostings,
	FeatureTeamMembers,
	FeatureCalculatorExports,
	FeatureBoostCredits,
	FeatureLeadAccess,
	FeatureAnalytics,
	FeatureCustomBranding,
	FeatureAPIAccess,
	FeaturePrioritySupport,
}

// Features returns the closed feature set.
func Features() []Feature {
	out := make([]Feature, len(allFeatures))
	copy(out, allFeatures)
	return out
}

// Known reports whether f belongs to the closed feature set.
func (f Feature) Known() bool {
	for _, known := range allFeatures {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFeature normalizes a raw feature identifier.
func ParseFeature(raw string) (Feature, bool) {
	f := Feature(strings.ToLower(strings.TrimSpace(raw)))
	return f, f.Known()
}
