package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service resolves a user's plan for entitlement checks. A user without a
// subscription row resolves to the FREE plan rather than an error.
type Service interface {
	GetPlan(ctx context.Context, userID snowflake.ID) (Plan, error)
	Upsert(ctx context.Context, req UpsertRequest) (Subscription, error)
}

// Repository is the storage contract behind the service.
type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}

// UpsertRequest creates or replaces a user's subscription.
type UpsertRequest struct {
	UserID   string         `json:"user_id"`
	Tier     string         `json:"tier"`
	Status   Status         `json:"status"`
	StartAt  string         `json:"start_at,omitempty"` // RFC 3339 date, defaults to now
	Metadata map[string]any `json:"metadata,omitempty"`
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidTier          = errors.New("invalid_tier")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidStartAt       = errors.New("invalid_start_at")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
