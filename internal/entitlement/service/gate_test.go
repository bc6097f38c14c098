package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/smallbiznis/tradeboard/internal/entitlement/domain"
	subscriptiondomain "github.com/smallbiznis/tradeboard/internal/subscription/domain"
	"github.com/smallbiznis/tradeboard/internal/tier"
)

const testUser = "1001"

func wantDenied(t *testing.T, err error, reason error) *domain.DeniedError {
	t.Helper()
	var denied *domain.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want DeniedError", err)
	}
	if !errors.Is(err, reason) {
		t.Fatalf("reason = %v, want %v", denied.Reason, reason)
	}
	return denied
}

func TestCheckAllowsAtExactLimit(t *testing.T) {
	f := newFixture(proPlan())
	f.store.amounts[f.key(testUser, tier.FeatureTeamMembers)] = 4

	d, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureTeamMembers,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatal("reaching the limit exactly must be allowed")
	}
	if d.CurrentUsage != 4 || d.Remaining != 1 {
		t.Fatalf("usage=%d remaining=%d, want 4 and 1", d.CurrentUsage, d.Remaining)
	}
}

func TestCheckDeniesPastLimitWithoutOverage(t *testing.T) {
	f := newFixture(proPlan())
	f.store.amounts[f.key(testUser, tier.FeatureTeamMembers)] = 5

	d, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureTeamMembers,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)
	if d.Allowed {
		t.Fatal("over-limit check allowed, want denied")
	}
	if d.CurrentUsage != 5 || d.Remaining != 0 {
		t.Fatalf("usage=%d remaining=%d, want 5 and 0", d.CurrentUsage, d.Remaining)
	}
	if d.Tier != tier.TierPro {
		t.Fatalf("tier = %s, want PRO", d.Tier)
	}
}

func TestCheckQuotesOveragePastLimit(t *testing.T) {
	f := newFixture(proPlan())
	f.store.amounts[f.key(testUser, tier.FeatureJobPostings)] = 24

	d, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:       testUser,
		Feature:      tier.FeatureJobPostings,
		Amount:       5,
		AllowOverage: true,
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.Allowed {
		t.Fatal("overage-eligible check denied, want allowed")
	}
	if d.OverageUnits != 4 || d.BillableUnits != 2 || d.OverageCost != 5000 {
		t.Fatalf("quote = units %d billable %d cost %d, want 4/2/5000",
			d.OverageUnits, d.BillableUnits, d.OverageCost)
	}
	if f.store.amount(f.key(testUser, tier.FeatureJobPostings)) != 24 {
		t.Fatal("check mutated the usage counter")
	}
}

func TestCheckHardCapsWithoutOverageOptIn(t *testing.T) {
	f := newFixture(proPlan())
	f.store.amounts[f.key(testUser, tier.FeatureJobPostings)] = 25

	// The pair has a rate, but the caller did not ask for overage.
	d, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureJobPostings,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)
	if d.Allowed {
		t.Fatal("over-limit check allowed without overage opt-in")
	}
	if d.OverageCost != 0 || d.OverageUnits != 0 {
		t.Fatalf("quote on a hard-capped check: units %d cost %d", d.OverageUnits, d.OverageCost)
	}
}

func TestCheckBooleanFeatures(t *testing.T) {
	free := newFixture(subscriptiondomain.Plan{Tier: tier.TierFree, Status: subscriptiondomain.StatusActive})
	_, err := free.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureLeadAccess,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)

	pro := newFixture(proPlan())
	d, err := pro.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureLeadAccess,
	})
	if err != nil || !d.Allowed {
		t.Fatalf("PRO lead_access: allowed=%v err=%v, want allowed", d.Allowed, err)
	}
}

func TestCheckUnlimitedReportsUsage(t *testing.T) {
	f := newFixture(subscriptiondomain.Plan{
		Tier:   tier.TierEnterprise,
		Status: subscriptiondomain.StatusActive,
		Exists: true,
	})
	f.store.amounts[f.key(testUser, tier.FeatureJobPostings)] = 9000

	d, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureJobPostings,
	})
	if err != nil || !d.Allowed {
		t.Fatalf("unlimited check: allowed=%v err=%v", d.Allowed, err)
	}
	if d.CurrentUsage != 9000 {
		t.Fatalf("usage = %d, want 9000", d.CurrentUsage)
	}
}

func TestCheckUnauthorizedUser(t *testing.T) {
	f := newFixture(proPlan())
	for _, userID := range []string{"", "not-a-number"} {
		_, err := f.svc.Check(context.Background(), domain.CheckRequest{
			UserID:  userID,
			Feature: tier.FeatureJobPostings,
		})
		wantDenied(t, err, domain.ErrUnauthorized)
	}
}

func TestCheckUnknownUserGetsFreeTier(t *testing.T) {
	// No subscription row resolves to FREE, not to a refusal.
	f := newFixture(subscriptiondomain.Plan{Tier: tier.TierFree, Status: subscriptiondomain.StatusActive})

	d, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureJobPostings,
	})
	if err != nil || !d.Allowed {
		t.Fatalf("first free posting: allowed=%v err=%v", d.Allowed, err)
	}
	if d.Tier != tier.TierFree || d.Limit != "1" {
		t.Fatalf("tier=%s limit=%s, want FREE and 1", d.Tier, d.Limit)
	}
}

func TestCheckInactiveSubscriptionDenied(t *testing.T) {
	f := newFixture(subscriptiondomain.Plan{
		Tier:   tier.TierPro,
		Status: subscriptiondomain.StatusPastDue,
		Exists: true,
	})

	_, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureLeadAccess,
	})
	wantDenied(t, err, domain.ErrSubscriptionInactive)
}

func TestCheckFailsClosedOnPlanLookup(t *testing.T) {
	f := newFixture(proPlan())
	f.plans.err = errors.New("db down")

	_, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureJobPostings,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)
}

func TestCheckFailsClosedOnUsageRead(t *testing.T) {
	f := newFixture(proPlan())
	f.store.failRead = true

	_, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureJobPostings,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)
}

func TestDowngradeKeepsRecordedUsage(t *testing.T) {
	// A PRO user who posted 5 jobs then dropped to FREE is over the FREE
	// limit of 1. Usage stays, further postings are refused.
	f := newFixture(subscriptiondomain.Plan{
		Tier:   tier.TierFree,
		Status: subscriptiondomain.StatusActive,
		Exists: true,
	})
	f.store.amounts[f.key(testUser, tier.FeatureJobPostings)] = 5

	d, err := f.svc.Check(context.Background(), domain.CheckRequest{
		UserID:  testUser,
		Feature: tier.FeatureJobPostings,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)
	if d.CurrentUsage != 5 || d.Remaining != 0 {
		t.Fatalf("usage=%d remaining=%d, want 5 and 0", d.CurrentUsage, d.Remaining)
	}
}

func TestConsumeIncrementsWithinLimit(t *testing.T) {
	f := newFixture(proPlan())
	key := f.key(testUser, tier.FeatureTeamMembers)

	d, err := f.svc.Consume(context.Background(), domain.ConsumeRequest{
		UserID:  testUser,
		Feature: tier.FeatureTeamMembers,
		Amount:  2,
	})
	if err != nil || !d.Allowed {
		t.Fatalf("consume: allowed=%v err=%v", d.Allowed, err)
	}
	if d.CurrentUsage != 2 || d.Remaining != 3 {
		t.Fatalf("usage=%d remaining=%d, want 2 and 3", d.CurrentUsage, d.Remaining)
	}
	if f.store.amount(key) != 2 {
		t.Fatalf("stored amount = %d, want 2", f.store.amount(key))
	}
}

func TestConsumeDeniedLeavesCounterUntouched(t *testing.T) {
	f := newFixture(proPlan())
	key := f.key(testUser, tier.FeatureTeamMembers)
	f.store.amounts[key] = 5

	_, err := f.svc.Consume(context.Background(), domain.ConsumeRequest{
		UserID:  testUser,
		Feature: tier.FeatureTeamMembers,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)
	if f.store.amount(key) != 5 {
		t.Fatalf("stored amount = %d, want 5", f.store.amount(key))
	}
}

func TestConsumeBillsOveragePastLimit(t *testing.T) {
	f := newFixture(proPlan())
	key := f.key(testUser, tier.FeatureBoostCredits)
	f.store.amounts[key] = 10

	d, err := f.svc.Consume(context.Background(), domain.ConsumeRequest{
		UserID:       testUser,
		Feature:      tier.FeatureBoostCredits,
		Amount:       2,
		AllowOverage: true,
	})
	if err != nil || !d.Allowed {
		t.Fatalf("overage consume: allowed=%v err=%v", d.Allowed, err)
	}
	if d.CurrentUsage != 12 {
		t.Fatalf("usage = %d, want 12", d.CurrentUsage)
	}
	if d.OverageUnits != 2 || d.BillableUnits != 2 || d.OverageCost != 3000 {
		t.Fatalf("quote = units %d billable %d cost %d, want 2/2/3000",
			d.OverageUnits, d.BillableUnits, d.OverageCost)
	}
	if f.store.units[key] != 2 || f.store.costs[key] != 3000 {
		t.Fatalf("recorded overage = %d units %d cost, want 2 and 3000",
			f.store.units[key], f.store.costs[key])
	}
}

func TestConsumeHardCapsWithoutOverageOptIn(t *testing.T) {
	f := newFixture(proPlan())
	key := f.key(testUser, tier.FeatureBoostCredits)
	f.store.amounts[key] = 10

	d, err := f.svc.Consume(context.Background(), domain.ConsumeRequest{
		UserID:  testUser,
		Feature: tier.FeatureBoostCredits,
		Amount:  2,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)
	if d.Allowed {
		t.Fatal("over-limit consume allowed without overage opt-in")
	}
	if got := f.store.amount(key); got != 10 {
		t.Fatalf("stored amount = %d, want 10 untouched", got)
	}
	if f.store.units[key] != 0 || f.store.costs[key] != 0 {
		t.Fatalf("overage recorded on a hard-capped consume: units %d cost %d",
			f.store.units[key], f.store.costs[key])
	}
}

func TestConsumeFailsClosedOnStoreTimeout(t *testing.T) {
	f := newFixture(proPlan())
	f.store.consumeErr = errors.New("context deadline exceeded")

	_, err := f.svc.Consume(context.Background(), domain.ConsumeRequest{
		UserID:  testUser,
		Feature: tier.FeatureTeamMembers,
	})
	wantDenied(t, err, domain.ErrEntitlementDenied)
}

func TestConcurrentConsumeNeverExceedsLimit(t *testing.T) {
	f := newFixture(proPlan())
	key := f.key(testUser, tier.FeatureTeamMembers)

	const workers = 30
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := f.svc.Consume(context.Background(), domain.ConsumeRequest{
				UserID:  testUser,
				Feature: tier.FeatureTeamMembers,
			})
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Fatalf("allowed = %d, want exactly the limit of 5", allowed)
	}
	if got := f.store.amount(key); got != 5 {
		t.Fatalf("stored amount = %d, want 5", got)
	}
}
