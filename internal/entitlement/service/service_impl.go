// Package service implements the feature gate: plan resolution, limit
// evaluation, atomic consumption, and overage billing.
package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/entitlement/domain"
	"github.com/smallbiznis/tradeboard/internal/metrics"
	"github.com/smallbiznis/tradeboard/internal/period"
	"github.com/smallbiznis/tradeboard/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/tradeboard/internal/subscription/domain"
	"github.com/smallbiznis/tradeboard/internal/tier"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Catalog  *tier.Catalog
	Overages tier.OverageLookup
	Plans    subscriptiondomain.Service
	Usage    usagedomain.Service
	Tracker  usagedomain.Tracker
	Clock    clock.Clock
	Limiter  *ratelimit.CheckLimiter `optional:"true"`
	Metrics  *metrics.Recorder       `optional:"true"`
}

type entitlementService struct {
	log      *zap.Logger
	catalog  *tier.Catalog
	overages tier.OverageLookup
	plans    subscriptiondomain.Service
	usage    usagedomain.Service
	tracker  usagedomain.Tracker
	clock    clock.Clock
	limiter  *ratelimit.CheckLimiter
	metrics  *metrics.Recorder
}

func NewService(p ServiceParam) domain.Service {
	return &entitlementService{
		log:      p.Log.Named("entitlement.service"),
		catalog:  p.Catalog,
		overages: p.Overages,
		plans:    p.Plans,
		usage:    p.Usage,
		tracker:  p.Tracker,
		clock:    p.Clock,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
	}
}

// gate carries everything the decision paths need after plan resolution.
type gate struct {
	userID snowflake.ID
	plan   subscriptiondomain.Plan
	limit  tier.Limit
	key    usagedomain.Key
}

// resolve runs the shared front half of every entitlement call: rate
// limit, user validation, plan lookup, inactive-subscription refusal, and
// the limit matrix lookup. Denials come back as (Decision, *DeniedError).
func (s *entitlementService) resolve(ctx context.Context, rawUserID string, feature tier.Feature) (gate, domain.Decision, error) {
	base := domain.Decision{Feature: feature}

	if s.limiter.Enabled() {
		res, err := s.limiter.AllowCheck(ctx, rawUserID)
		if err != nil {
			// A limiter outage must not take entitlements down with it.
			s.log.Warn("rate limiter unavailable", zap.Error(err))
		} else if !res.Allowed {
			s.record(feature, "rate_limited")
			base.Message = "too many entitlement checks"
			base.RetryAfter = res.RetryAfter
			d, err := domain.Denied(domain.ErrRateLimited, base)
			return gate{}, d, err
		}
	}

	userID, err := snowflake.ParseString(rawUserID)
	if err != nil || rawUserID == "" || userID == 0 {
		s.record(feature, "unauthorized")
		base.Message = "missing or malformed user id"
		d, derr := domain.Denied(domain.ErrUnauthorized, base)
		return gate{}, d, derr
	}

	if !feature.Known() {
		s.record(feature, "denied")
		base.Message = fmt.Sprintf("unknown feature %q", string(feature))
		d, derr := domain.Denied(domain.ErrEntitlementDenied, base)
		return gate{}, d, derr
	}

	plan, err := s.plans.GetPlan(ctx, userID)
	if err != nil {
		// Unknown standing never widens access.
		s.record(feature, "denied")
		s.log.Error("plan lookup failed", zap.String("user_id", rawUserID), zap.Error(err))
		base.Message = "subscription lookup unavailable"
		d, derr := domain.Denied(domain.ErrEntitlementDenied, base)
		return gate{}, d, derr
	}

	base.Tier = plan.Tier
	base.Period = period.Anchored(s.clock.Now(), plan.Anchor)

	if plan.Exists && plan.Tier != tier.TierFree && !plan.Status.Billable() {
		s.record(feature, "inactive")
		base.Message = fmt.Sprintf("subscription status %s does not grant %s entitlements", plan.Status, plan.Tier)
		d, derr := domain.Denied(domain.ErrSubscriptionInactive, base)
		return gate{}, d, derr
	}

	limit := s.catalog.Lookup(plan.Tier, feature)
	base.Limit = limit.String()

	g := gate{
		userID: userID,
		plan:   plan,
		limit:  limit,
		key: usagedomain.Key{
			UserID:  userID,
			Feature: feature,
			Period:  base.Period,
		},
	}
	return g, base, nil
}

func (s *entitlementService) Check(ctx context.Context, req domain.CheckRequest) (domain.Decision, error) {
	defer s.observe()()

	amount := normalizeAmount(req.Amount)
	g, d, err := s.resolve(ctx, req.UserID, req.Feature)
	if err != nil {
		return d, err
	}

	switch g.limit.Kind {
	case tier.LimitBoolean:
		return s.decideBoolean(g, d)

	case tier.LimitUnlimited:
		// No cap to defend, so a read failure only costs reporting detail.
		if usage, err := s.usage.Usage(ctx, g.key); err == nil {
			d.CurrentUsage = usage
		}
		d.Allowed = true
		s.record(req.Feature, "allowed")
		return d, nil

	default:
		usage, err := s.usage.Usage(ctx, g.key)
		if err != nil {
			s.record(req.Feature, "denied")
			d.Message = "usage store unavailable"
			return domain.Denied(domain.ErrEntitlementDenied, d)
		}
		d.CurrentUsage = usage
		d.Remaining = max64(0, g.limit.Count-usage)

		if usage+amount <= g.limit.Count {
			d.Allowed = true
			s.record(req.Feature, "allowed")
			return d, nil
		}

		rate, offered := s.overages().Lookup(g.plan.Tier, req.Feature)
		if !req.AllowOverage || !offered {
			s.record(req.Feature, "denied")
			d.Message = fmt.Sprintf("%s limit of %d reached for tier %s", req.Feature, g.limit.Count, g.plan.Tier)
			return domain.Denied(domain.ErrEntitlementDenied, d)
		}

		q := quoteOverage(rate, usage, usage+amount, g.limit.Count)
		d.Allowed = true
		d.OverageUnits = q.Units
		d.BillableUnits = q.BillableUnits
		d.OverageCost = q.Cost
		s.record(req.Feature, "allowed_overage")
		return d, nil
	}
}

func (s *entitlementService) Consume(ctx context.Context, req domain.ConsumeRequest) (domain.Decision, error) {
	defer s.observe()()

	amount := normalizeAmount(req.Amount)
	g, d, err := s.resolve(ctx, req.UserID, req.Feature)
	if err != nil {
		return d, err
	}

	switch g.limit.Kind {
	case tier.LimitBoolean:
		return s.decideBoolean(g, d)

	case tier.LimitUnlimited:
		// Unmetered tracking writes still get smoothed so one integration
		// bug cannot flood the store.
		if s.limiter.Enabled() {
			ok, retryAfter, err := s.limiter.AllowTrack(ctx, req.UserID)
			if err != nil {
				s.log.Warn("tracking rate limiter unavailable", zap.Error(err))
			} else if !ok {
				s.record(req.Feature, "rate_limited")
				d.Message = "usage tracking rate exceeded"
				d.RetryAfter = retryAfter
				return domain.Denied(domain.ErrRateLimited, d)
			}
		}
		res := s.usage.Track(ctx, usagedomain.TrackRequest{
			Key:            g.key,
			Delta:          amount,
			Metadata:       req.Metadata,
			IdempotencyKey: req.IdempotencyKey,
		})
		d.Allowed = true
		d.CurrentUsage = res.Amount
		s.record(req.Feature, "allowed")
		return d, nil

	default:
		return s.consumeNumeric(ctx, g, d, amount, req.AllowOverage, req.Metadata)
	}
}

// consumeNumeric applies the conditional increment, falling through to
// billed overage when the limit is exhausted, the caller opted in, and
// the pair has a rate.
func (s *entitlementService) consumeNumeric(ctx context.Context, g gate, d domain.Decision, amount int64, allowOverage bool, meta map[string]any) (domain.Decision, error) {
	newAmount, applied, err := s.usage.ConsumeWithinLimit(ctx, g.key, amount, g.limit.Count)
	if err != nil {
		s.record(g.key.Feature, "denied")
		d.Message = "usage store unavailable"
		return domain.Denied(domain.ErrEntitlementDenied, d)
	}

	if applied {
		d.Allowed = true
		d.CurrentUsage = newAmount
		d.Remaining = max64(0, g.limit.Count-newAmount)
		s.record(g.key.Feature, "allowed")
		return d, nil
	}

	d.CurrentUsage = newAmount
	d.Remaining = max64(0, g.limit.Count-newAmount)

	rate, offered := s.overages().Lookup(g.plan.Tier, g.key.Feature)
	if !allowOverage || !offered {
		s.record(g.key.Feature, "denied")
		d.Message = fmt.Sprintf("%s limit of %d reached for tier %s", g.key.Feature, g.limit.Count, g.plan.Tier)
		return domain.Denied(domain.ErrEntitlementDenied, d)
	}

	res := s.usage.Track(ctx, usagedomain.TrackRequest{Key: g.key, Delta: amount, Metadata: meta})
	if !res.Tracked {
		// Overage consumption must not proceed unrecorded; it would be
		// unbillable.
		s.record(g.key.Feature, "denied")
		d.Message = "usage store unavailable"
		return domain.Denied(domain.ErrEntitlementDenied, d)
	}

	q := quoteOverage(rate, res.Amount-amount, res.Amount, g.limit.Count)
	if err := s.usage.RecordOverage(ctx, g.key, q.Units, q.Cost); err != nil {
		s.log.Error("overage billing record failed",
			zap.String("user_id", g.userID.String()),
			zap.String("feature", string(g.key.Feature)),
			zap.Int64("units", q.Units),
			zap.Int64("cost", q.Cost),
			zap.Error(err),
		)
	} else if q.Cost > 0 && s.metrics != nil {
		s.metrics.RecordOverageBilled(string(g.key.Feature), q.Cost)
	}

	d.Allowed = true
	d.CurrentUsage = res.Amount
	d.OverageUnits = q.Units
	d.BillableUnits = q.BillableUnits
	d.OverageCost = q.Cost
	s.record(g.key.Feature, "allowed_overage")
	return d, nil
}

func (s *entitlementService) Enforce(ctx context.Context, req domain.EnforceRequest) (domain.Decision, error) {
	if req.Op == nil {
		return domain.Decision{Feature: req.Feature}, fmt.Errorf("enforce: nil operation")
	}

	amount := normalizeAmount(req.Amount)
	g, d, err := s.resolve(ctx, req.UserID, req.Feature)
	if err != nil {
		return d, err
	}

	switch g.limit.Kind {
	case tier.LimitBoolean:
		d, err := s.decideBoolean(g, d)
		if err != nil {
			return d, err
		}
		return d, req.Op(ctx)

	case tier.LimitUnlimited:
		d.Allowed = true
		if err := req.Op(ctx); err != nil {
			return d, err
		}
		// Post-operation tracking is deferred; a queue failure is logged
		// and never unwinds the caller's completed work.
		if err := s.tracker.Enqueue(ctx, usagedomain.TrackRequest{
			Key:            g.key,
			Delta:          amount,
			Metadata:       req.Metadata,
			IdempotencyKey: req.IdempotencyKey,
		}); err != nil {
			if s.metrics != nil {
				s.metrics.RecordTrackingFailure()
			}
			s.log.Warn("usage tracking enqueue failed",
				zap.String("user_id", g.userID.String()),
				zap.String("feature", string(req.Feature)),
				zap.Error(err),
			)
		}
		s.record(req.Feature, "allowed")
		return d, nil

	default:
		d, err := s.consumeNumeric(ctx, g, d, amount, req.AllowOverage, req.Metadata)
		if err != nil {
			return d, err
		}
		if opErr := req.Op(ctx); opErr != nil {
			// Units were reserved for work that did not happen.
			s.usage.Release(ctx, g.key, amount)
			return d, opErr
		}
		return d, nil
	}
}

func (s *entitlementService) decideBoolean(g gate, d domain.Decision) (domain.Decision, error) {
	if !g.limit.Enabled {
		s.record(g.key.Feature, "denied")
		d.Message = fmt.Sprintf("%s is not included in tier %s", g.key.Feature, g.plan.Tier)
		return domain.Denied(domain.ErrEntitlementDenied, d)
	}
	d.Allowed = true
	s.record(g.key.Feature, "allowed")
	return d, nil
}

func (s *entitlementService) record(feature tier.Feature, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordDecision(string(feature), outcome)
	}
}

func (s *entitlementService) observe() func() {
	if s.metrics == nil {
		return func() {}
	}
	start := s.clock.Now()
	return func() { s.metrics.ObserveCheckDuration(s.clock.Now().Sub(start)) }
}

func normalizeAmount(n int64) int64 {
	if n <= 0 {
		return 1
	}
	return n
}
