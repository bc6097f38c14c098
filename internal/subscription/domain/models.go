// Package domain contains persistence models for user subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/tier"
	"gorm.io/datatypes"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusTrialing Status = "TRIALING"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
	StatusEnded    Status = "ENDED"
)

// Billable reports whether the subscription currently grants its paid
// entitlements. Trials count; lapsed and canceled plans do not.
func (s Status) Billable() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription captures a user's plan. StartAt anchors the billing period's
// day of month.
type Subscription struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	UserID     snowflake.ID      `gorm:"not null;uniqueIndex"`
	Tier       string            `gorm:"type:text;not null"`
	Status     Status            `gorm:"type:text;not null"`
	StartAt    time.Time         `gorm:"not null"`
	CanceledAt *time.Time        `gorm:""`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Plan is the resolved entitlement view of a subscription: the parsed tier,
// whether paid features are currently usable, and the billing anchor.
type Plan struct {
	Tier    tier.Tier
	Status  Status
	Anchor  time.Time
	Exists  bool
	StartAt time.Time
}
