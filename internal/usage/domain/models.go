// Package domain contains persistence models for metered feature usage.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/period"
	"github.com/smallbiznis/tradeboard/internal/tier"
	"gorm.io/datatypes"
)

// UsageRecord is the per-(user, feature, billing period) counter. At most
// one row exists per identity; Amount never decreases within a period
// except to unwind a reservation whose protected operation failed. Rows for
// ended periods are historical and never mutated again.
type UsageRecord struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	UserID       snowflake.ID      `gorm:"not null;uniqueIndex:idx_usage_identity,priority:1"`
	Feature      string            `gorm:"type:text;not null;uniqueIndex:idx_usage_identity,priority:2"`
	PeriodStart  time.Time         `gorm:"not null;uniqueIndex:idx_usage_identity,priority:3"`
	PeriodEnd    time.Time         `gorm:"not null"`
	Amount       int64             `gorm:"not null;default:0"`
	OverageUnits int64             `gorm:"not null;default:0"`
	OverageCost  int64             `gorm:"not null;default:0"` // minor currency units
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// Key identifies one usage counter.
type Key struct {
	UserID  snowflake.ID
	Feature tier.Feature
	Period  period.Period
}

// JobStatus tracks a tracking job through the async pipeline.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusApplied JobStatus = "APPLIED"
	JobStatusFailed  JobStatus = "FAILED"
)

// TrackingJob is a durable deferred usage increment. The tracker worker
// applies pending jobs at least once; the idempotency key makes replays
// no-ops.
type TrackingJob struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         snowflake.ID `gorm:"not null;index"`
	Feature        string       `gorm:"type:text;not null"`
	PeriodStart    time.Time    `gorm:"not null"`
	PeriodEnd      time.Time    `gorm:"not null"`
	Delta          int64        `gorm:"not null"`
	IdempotencyKey string       `gorm:"type:text;not null;uniqueIndex"`
	Status         JobStatus    `gorm:"type:text;not null;index"`
	Attempts       int          `gorm:"not null;default:0"`
	LastError      string       `gorm:"type:text"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TrackingJob) TableName() string { return "usage_tracking_jobs" }
