package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/clock"
	subscriptiondomain "github.com/smallbiznis/tradeboard/internal/subscription/domain"
	"github.com/smallbiznis/tradeboard/internal/tier"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  subscriptiondomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  subscriptiondomain.Repository
	clock clock.Clock
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

// GetPlan resolves the entitlement view of a user's subscription. No row
// means the FREE plan with a first-of-month billing anchor.
func (s *Service) GetPlan(ctx context.Context, userID snowflake.ID) (subscriptiondomain.Plan, error) {
	if userID == 0 {
		return subscriptiondomain.Plan{}, subscriptiondomain.ErrInvalidUser
	}

	sub, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return subscriptiondomain.Plan{}, err
	}
	if sub == nil {
		return subscriptiondomain.Plan{
			Tier:   tier.TierFree,
			Status: subscriptiondomain.StatusActive,
		}, nil
	}

	return subscriptiondomain.Plan{
		Tier:    tier.Parse(sub.Tier),
		Status:  sub.Status,
		Anchor:  sub.StartAt,
		StartAt: sub.StartAt,
		Exists:  true,
	}, nil
}

func (s *Service) Upsert(ctx context.Context, req subscriptiondomain.UpsertRequest) (subscriptiondomain.Subscription, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidUser
	}

	t := tier.Tier(strings.ToUpper(strings.TrimSpace(req.Tier)))
	if !t.Known() {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTier
	}

	status := req.Status
	if status == "" {
		status = subscriptiondomain.StatusActive
	}
	switch status {
	case subscriptiondomain.StatusActive,
		subscriptiondomain.StatusTrialing,
		subscriptiondomain.StatusPastDue,
		subscriptiondomain.StatusCanceled,
		subscriptiondomain.StatusEnded:
	default:
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidStatus
	}

	now := s.clock.Now()
	startAt := now
	if raw := strings.TrimSpace(req.StartAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidStartAt
		}
		startAt = parsed.UTC()
	}

	sub := subscriptiondomain.Subscription{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Tier:      string(t),
		Status:    status,
		StartAt:   startAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Metadata != nil {
		sub.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Upsert(ctx, s.db, &sub); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription upserted",
		zap.String("user_id", userID.String()),
		zap.String("tier", string(t)),
		zap.String("status", string(status)),
	)
	return sub, nil
}
