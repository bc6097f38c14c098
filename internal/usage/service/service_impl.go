package service

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/smallbiznis/tradeboard/internal/metrics"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Repo    usagedomain.Repository
	Metrics *metrics.Recorder `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    usagedomain.Repository
	metrics *metrics.Recorder

	readTimeout    time.Duration
	writeTimeout   time.Duration
	consumeTimeout time.Duration
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("usage.service"),
		repo:           p.Repo,
		metrics:        p.Metrics,
		readTimeout:    orDefault(p.Cfg.Usage.ReadTimeout, 2*time.Second),
		writeTimeout:   orDefault(p.Cfg.Usage.WriteTimeout, 3*time.Second),
		consumeTimeout: orDefault(p.Cfg.Usage.ConsumeTimeout, 3*time.Second),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (s *Service) Usage(ctx context.Context, key usagedomain.Key) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	amount, err := s.repo.Amount(ctx, s.db, key)
	if err != nil {
		if isTimeout(ctx, err) {
			return 0, usagedomain.ErrStoreTimeout
		}
		return 0, err
	}
	return amount, nil
}

// Track never returns an error: a failed tracking write must not block the
// caller, so it is logged, counted, and reported as untracked.
func (s *Service) Track(ctx context.Context, req usagedomain.TrackRequest) usagedomain.TrackResult {
	if err := validateKey(req.Key); err != nil {
		s.log.Warn("usage tracking rejected", zap.Error(err))
		return usagedomain.TrackResult{}
	}
	if req.Delta <= 0 {
		s.log.Warn("usage tracking rejected", zap.Error(usagedomain.ErrInvalidDelta))
		return usagedomain.TrackResult{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	var meta datatypes.JSONMap
	if req.Metadata != nil {
		meta = datatypes.JSONMap(req.Metadata)
	}

	amount, err := s.repo.Increment(ctx, s.db, req.Key, req.Delta, meta)
	if err != nil {
		s.metrics.RecordTrackingFailure()
		s.log.Warn("usage tracking failed",
			zap.String("user_id", req.Key.UserID.String()),
			zap.String("feature", string(req.Key.Feature)),
			zap.Int64("delta", req.Delta),
			zap.Error(err),
		)
		return usagedomain.TrackResult{}
	}
	return usagedomain.TrackResult{Amount: amount, Tracked: true}
}

// ConsumeWithinLimit fails closed: a timeout during the conditional
// increment surfaces as ErrStoreTimeout and the caller must deny.
func (s *Service) ConsumeWithinLimit(ctx context.Context, key usagedomain.Key, delta, limit int64) (int64, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}
	if delta <= 0 {
		return 0, false, usagedomain.ErrInvalidDelta
	}

	ctx, cancel := context.WithTimeout(ctx, s.consumeTimeout)
	defer cancel()

	amount, ok, err := s.repo.IncrementWithinLimit(ctx, s.db, key, delta, limit)
	if err != nil {
		if isTimeout(ctx, err) {
			return 0, false, usagedomain.ErrStoreTimeout
		}
		return 0, false, err
	}
	return amount, ok, nil
}

func (s *Service) Release(ctx context.Context, key usagedomain.Key, delta int64) {
	if delta <= 0 {
		return
	}

	// Detached from the caller's context: a canceled request must still be
	// able to unwind its reservation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	if err := s.repo.Decrement(ctx, s.db, key, delta); err != nil {
		s.metrics.RecordTrackingFailure()
		s.log.Warn("usage release failed, counter over-counts",
			zap.String("user_id", key.UserID.String()),
			zap.String("feature", string(key.Feature)),
			zap.Int64("delta", delta),
			zap.Error(err),
		)
	}
}

func (s *Service) RecordOverage(ctx context.Context, key usagedomain.Key, units, cost int64) error {
	if units <= 0 && cost <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	meta := datatypes.JSONMap{
		"last_overage_units": units,
		"last_overage_cost":  cost,
		"last_overage_at":    time.Now().UTC().Format(time.RFC3339),
	}
	return s.repo.AddOverage(ctx, s.db, key, units, cost, meta)
}

func (s *Service) Summarize(ctx context.Context, req usagedomain.SummaryRequest) (usagedomain.SummaryResponse, error) {
	if req.From.IsZero() || req.To.IsZero() || !req.From.Before(req.To) {
		return usagedomain.SummaryResponse{}, usagedomain.ErrInvalidRange
	}

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	rows, err := s.repo.Summarize(ctx, s.db, req)
	if err != nil {
		return usagedomain.SummaryResponse{}, err
	}

	resp := usagedomain.SummaryResponse{
		From:     req.From.UTC(),
		To:       req.To.UTC(),
		Features: rows,
	}
	for _, row := range rows {
		resp.TotalAmount += row.TotalAmount
		resp.TotalOverageCost += row.OverageCost
	}
	return resp, nil
}

func validateKey(key usagedomain.Key) error {
	if key.UserID == 0 {
		return usagedomain.ErrInvalidUser
	}
	if !key.Feature.Known() {
		return usagedomain.ErrInvalidFeature
	}
	if key.Period.Start.IsZero() || !key.Period.Start.Before(key.Period.End) {
		return usagedomain.ErrInvalidPeriod
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
