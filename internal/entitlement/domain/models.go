// Package domain defines the entitlement decision model: what a caller
// asks for, what the gate answers, and how denials are classified.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/tradeboard/internal/period"
	"github.com/smallbiznis/tradeboard/internal/tier"
)

// CheckRequest asks whether a user may consume Amount units of a feature.
// Amount defaults to 1 when zero.
type CheckRequest struct {
	UserID  string       `json:"user_id"`
	Feature tier.Feature `json:"feature"`
	Amount  int64        `json:"amount,omitempty"`

	// AllowOverage opts this call into billed consumption beyond the
	// numeric limit. Without it the limit is a hard cap even when the
	// (tier, feature) pair has an overage rate.
	AllowOverage bool `json:"allow_overage,omitempty"`
}

// ConsumeRequest records consumption if and only if the gate allows it.
type ConsumeRequest struct {
	UserID       string         `json:"user_id"`
	Feature      tier.Feature   `json:"feature"`
	Amount       int64          `json:"amount,omitempty"`
	AllowOverage bool           `json:"allow_overage,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// IdempotencyKey deduplicates deferred tracking writes on retry.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Operation is the caller's side effect guarded by Enforce. It runs at
// most once per call.
type Operation func(ctx context.Context) error

// EnforceRequest gates Op behind the entitlement check and keeps the
// usage counter consistent with whether Op succeeded.
type EnforceRequest struct {
	UserID         string
	Feature        tier.Feature
	Amount         int64
	AllowOverage   bool
	Op             Operation
	Metadata       map[string]any
	IdempotencyKey string
}

// Decision is the full answer to an entitlement question. It is returned
// on denials too, so callers and handlers can tell the user exactly where
// they stand.
type Decision struct {
	Allowed      bool          `json:"allowed"`
	Tier         tier.Tier     `json:"tier"`
	Feature      tier.Feature  `json:"feature"`
	Limit        string        `json:"limit"`
	CurrentUsage int64         `json:"current_usage"`
	Remaining    int64         `json:"remaining"`
	Period       period.Period `json:"period"`

	// Overage quote, populated only when the decision crosses the limit
	// on a feature with a configured overage rate.
	OverageUnits  int64 `json:"overage_units,omitempty"`
	BillableUnits int64 `json:"billable_units,omitempty"`
	OverageCost   int64 `json:"overage_cost,omitempty"`

	Message    string        `json:"message,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Service is the feature gate.
type Service interface {
	// Check answers without mutating any counter.
	Check(ctx context.Context, req CheckRequest) (Decision, error)

	// Consume atomically records usage when allowed. On a numeric limit
	// the increment and the limit check are one conditional statement.
	Consume(ctx context.Context, req ConsumeRequest) (Decision, error)

	// Enforce runs req.Op only when allowed and releases reserved units
	// if the operation fails. The operation's own error is returned
	// unwrapped.
	Enforce(ctx context.Context, req EnforceRequest) (Decision, error)
}

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrEntitlementDenied    = errors.New("entitlement_denied")
	ErrRateLimited          = errors.New("rate_limited")
	ErrSubscriptionInactive = errors.New("subscription_inactive")
)

// DeniedError classifies a refused request. Reason is one of the sentinel
// errors above; Decision carries the details the caller should surface.
type DeniedError struct {
	Reason   error
	Decision Decision
}

func (e *DeniedError) Error() string {
	if e.Decision.Message != "" {
		return fmt.Sprintf("%s: %s", e.Reason.Error(), e.Decision.Message)
	}
	return e.Reason.Error()
}

func (e *DeniedError) Unwrap() error { return e.Reason }

// Denied builds the paired (Decision, error) return for a refusal.
func Denied(reason error, d Decision) (Decision, error) {
	d.Allowed = false
	return d, &DeniedError{Reason: reason, Decision: d}
}
