package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the usage store adapter: bounded, logged access to the
// per-(user, feature, period) counters. Reads and conditional increments
// fail closed; plain tracking writes fail open (logged, never blocking the
// caller).
type Service interface {
	// Usage returns the current amount for the key, 0 when no record
	// exists.
	Usage(ctx context.Context, key Key) (int64, error)

	// Track applies a best-effort unconditional increment. A storage
	// failure is logged and reported through Tracked=false; it never
	// returns an error to the caller.
	Track(ctx context.Context, req TrackRequest) TrackResult

	// ConsumeWithinLimit atomically increments the counter only if the
	// post-increment amount stays at or under limit. It returns the
	// amount after the statement (the unchanged amount on refusal) and
	// whether the increment was applied. Timeouts surface as
	// ErrStoreTimeout and must be treated as a denial.
	ConsumeWithinLimit(ctx context.Context, key Key, delta, limit int64) (int64, bool, error)

	// Release unwinds a reservation made by ConsumeWithinLimit in this
	// same call, when the protected operation failed after the units were
	// reserved. Failures are logged; the counter then over-counts rather
	// than under-counts.
	Release(ctx context.Context, key Key, delta int64)

	// RecordOverage accumulates billed overage units and cost on the
	// period's record and stamps the last overage into its metadata.
	RecordOverage(ctx context.Context, key Key, units, cost int64) error

	// Summarize aggregates amount and overage cost per feature across
	// users for a period-start date range.
	Summarize(ctx context.Context, req SummaryRequest) (SummaryResponse, error)
}

// Repository executes the raw counter statements against a given handle so
// services and workers can run them inside their own transactions.
type Repository interface {
	Amount(ctx context.Context, db *gorm.DB, key Key) (int64, error)
	Increment(ctx context.Context, db *gorm.DB, key Key, delta int64, meta datatypes.JSONMap) (int64, error)
	IncrementWithinLimit(ctx context.Context, db *gorm.DB, key Key, delta, limit int64) (int64, bool, error)
	Decrement(ctx context.Context, db *gorm.DB, key Key, delta int64) error
	AddOverage(ctx context.Context, db *gorm.DB, key Key, units, cost int64, meta datatypes.JSONMap) error
	Summarize(ctx context.Context, db *gorm.DB, req SummaryRequest) ([]FeatureSummary, error)
}

// TrackerRepository persists and claims deferred tracking jobs.
type TrackerRepository interface {
	Enqueue(ctx context.Context, db *gorm.DB, job *TrackingJob) (bool, error)
	ClaimPending(ctx context.Context, db *gorm.DB, limit int) ([]TrackingJob, error)
	MarkApplied(ctx context.Context, db *gorm.DB, jobID snowflake.ID) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, jobID snowflake.ID, attempt int, lastError string) error
}

// Tracker accepts deferred increments that the background worker applies
// later, for metered features without a hard cap.
type Tracker interface {
	Enqueue(ctx context.Context, req TrackRequest) error
}

type TrackRequest struct {
	Key      Key
	Delta    int64
	Metadata map[string]any

	// IdempotencyKey deduplicates redeliveries; the tracker generates one
	// when absent.
	IdempotencyKey string
}

type TrackResult struct {
	Amount  int64
	Tracked bool
}

type SummaryRequest struct {
	From   time.Time `form:"from"`
	To     time.Time `form:"to"`
	UserID string    `form:"user_id"`
}

type FeatureSummary struct {
	Feature     string `json:"feature"`
	TotalAmount int64  `json:"total_amount"`
	OverageCost int64  `json:"overage_cost"`
	Users       int64  `json:"users"`
}

type SummaryResponse struct {
	From     time.Time        `json:"from"`
	To       time.Time        `json:"to"`
	Features []FeatureSummary `json:"features"`

	TotalAmount      int64 `json:"total_amount"`
	TotalOverageCost int64 `json:"total_overage_cost"`
}

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidFeature = errors.New("invalid_feature")
	ErrInvalidDelta   = errors.New("invalid_delta")
	ErrInvalidPeriod  = errors.New("invalid_period")
	ErrInvalidRange   = errors.New("invalid_range")
	ErrStoreTimeout   = errors.New("usage_store_timeout")
)
