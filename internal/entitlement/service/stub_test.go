package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/entitlement/domain"
	"github.com/smallbiznis/tradeboard/internal/period"
	subscriptiondomain "github.com/smallbiznis/tradeboard/internal/subscription/domain"
	"github.com/smallbiznis/tradeboard/internal/tier"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	"go.uber.org/zap"
)

type stubPlans struct {
	plan subscriptiondomain.Plan
	err  error
}

func (s *stubPlans) GetPlan(ctx context.Context, userID snowflake.ID) (subscriptiondomain.Plan, error) {
	if s.err != nil {
		return subscriptiondomain.Plan{}, s.err
	}
	return s.plan, nil
}

func (s *stubPlans) Upsert(ctx context.Context, req subscriptiondomain.UpsertRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, errors.New("not implemented")
}

// memUsage is an in-memory usage store with the same conditional-increment
// semantics as the real repository.
type memUsage struct {
	mu       sync.Mutex
	amounts  map[usagedomain.Key]int64
	units    map[usagedomain.Key]int64
	costs    map[usagedomain.Key]int64
	released map[usagedomain.Key]int64

	failTrack  bool
	failRead   bool
	consumeErr error
	overageErr error
}

func newMemUsage() *memUsage {
	return &memUsage{
		amounts:  make(map[usagedomain.Key]int64),
		units:    make(map[usagedomain.Key]int64),
		costs:    make(map[usagedomain.Key]int64),
		released: make(map[usagedomain.Key]int64),
	}
}

func (m *memUsage) Usage(ctx context.Context, key usagedomain.Key) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return 0, usagedomain.ErrStoreTimeout
	}
	return m.amounts[key], nil
}

func (m *memUsage) Track(ctx context.Context, req usagedomain.TrackRequest) usagedomain.TrackResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTrack {
		return usagedomain.TrackResult{}
	}
	m.amounts[req.Key] += req.Delta
	return usagedomain.TrackResult{Amount: m.amounts[req.Key], Tracked: true}
}

func (m *memUsage) ConsumeWithinLimit(ctx context.Context, key usagedomain.Key, delta, limit int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeErr != nil {
		return 0, false, m.consumeErr
	}
	cur := m.amounts[key]
	if cur+delta > limit {
		return cur, false, nil
	}
	m.amounts[key] = cur + delta
	return m.amounts[key], true, nil
}

func (m *memUsage) Release(ctx context.Context, key usagedomain.Key, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.amounts[key] -= delta
	m.released[key] += delta
}

func (m *memUsage) RecordOverage(ctx context.Context, key usagedomain.Key, units, cost int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overageErr != nil {
		return m.overageErr
	}
	m.units[key] += units
	m.costs[key] += cost
	return nil
}

func (m *memUsage) Summarize(ctx context.Context, req usagedomain.SummaryRequest) (usagedomain.SummaryResponse, error) {
	return usagedomain.SummaryResponse{}, nil
}

func (m *memUsage) amount(key usagedomain.Key) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.amounts[key]
}

type stubTracker struct {
	mu       sync.Mutex
	enqueued []usagedomain.TrackRequest
	err      error
}

func (s *stubTracker) Enqueue(ctx context.Context, req usagedomain.TrackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, req)
	return nil
}

func (s *stubTracker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enqueued)
}

type fixture struct {
	svc     domain.Service
	plans   *stubPlans
	store   *memUsage
	tracker *stubTracker
	clock   *clock.FakeClock
}

func newFixture(plan subscriptiondomain.Plan) *fixture {
	plans := &stubPlans{plan: plan}
	store := newMemUsage()
	tracker := &stubTracker{}
	clk := clock.NewFakeClock(time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		Log:      zap.NewNop(),
		Catalog:  tier.NewCatalog(),
		Overages: tier.StaticOverageLookup(tier.DefaultOverageTable()),
		Plans:    plans,
		Usage:    store,
		Tracker:  tracker,
		Clock:    clk,
	})

	return &fixture{svc: svc, plans: plans, store: store, tracker: tracker, clock: clk}
}

func proPlan() subscriptiondomain.Plan {
	return subscriptiondomain.Plan{
		Tier:   tier.TierPro,
		Status: subscriptiondomain.StatusActive,
		Exists: true,
	}
}

func (f *fixture) key(userID string, feature tier.Feature) usagedomain.Key {
	id, _ := snowflake.ParseString(userID)
	return usagedomain.Key{
		UserID:  id,
		Feature: feature,
		Period:  period.Anchored(f.clock.Now(), f.plans.plan.Anchor),
	}
}
