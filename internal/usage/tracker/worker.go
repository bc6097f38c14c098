// Package tracker applies deferred usage increments with at-least-once
// delivery. Jobs are durable rows; a crash between "operation succeeded"
// and "usage recorded" replays on the next poll, and idempotency keys make
// replays no-ops.
package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/tradeboard/internal/period"
	"github.com/smallbiznis/tradeboard/internal/ratelimit"
	"github.com/smallbiznis/tradeboard/internal/tier"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	UsageRepo usagedomain.Repository
	JobRepo   usagedomain.TrackerRepository
	Locker    *ratelimit.Locker `optional:"true"`
	Config    Config            `optional:"true"`
}

type Worker struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	usageRepo usagedomain.Repository
	jobRepo   usagedomain.TrackerRepository
	locker    *ratelimit.Locker
	cfg       Config
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:        p.DB,
		log:       p.Log.Named("usage.tracker"),
		genID:     p.GenID,
		usageRepo: p.UsageRepo,
		jobRepo:   p.JobRepo,
		locker:    p.Locker,
		cfg:       p.Config.withDefaults(),
	}
}

// Enqueue persists a deferred increment and returns once the job row is
// durable. The actual counter update happens on the next worker poll.
func (w *Worker) Enqueue(ctx context.Context, req usagedomain.TrackRequest) error {
	if req.Delta <= 0 {
		return usagedomain.ErrInvalidDelta
	}
	if req.Key.UserID == 0 {
		return usagedomain.ErrInvalidUser
	}
	if !req.Key.Feature.Known() {
		return usagedomain.ErrInvalidFeature
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	now := time.Now().UTC()
	job := &usagedomain.TrackingJob{
		ID:             w.genID.Generate(),
		UserID:         req.Key.UserID,
		Feature:        string(req.Key.Feature),
		PeriodStart:    req.Key.Period.Start,
		PeriodEnd:      req.Key.Period.End,
		Delta:          req.Delta,
		IdempotencyKey: key,
		Status:         usagedomain.JobStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := w.jobRepo.Enqueue(ctx, w.db, job)
	return err
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("usage tracking run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	_, err := w.processBatch(ctx, w.cfg.BatchSize)
	return err
}

func (w *Worker) processBatch(ctx context.Context, limit int) (int, error) {
	var jobs []usagedomain.TrackingJob
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		jobs, err = w.jobRepo.ClaimPending(ctx, tx, limit)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	applied := 0
	for _, job := range jobs {
		ok, err := w.applyJob(ctx, job)
		if err != nil {
			w.log.Warn("tracking job failed",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			if markErr := w.jobRepo.MarkFailed(ctx, w.db, job.ID, job.Attempts+1, err.Error()); markErr != nil {
				w.log.Warn("tracking job mark failed", zap.Error(markErr))
			}
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// applyJob transitions the job to applied and increments the counter in
// one transaction, so the increment happens exactly once even when two
// instances claim the same batch. It reports false without error when the
// job stays pending because another instance holds the key, or when it
// was already applied elsewhere.
func (w *Worker) applyJob(parentCtx context.Context, job usagedomain.TrackingJob) (bool, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.JobTimeout)
	defer cancel()

	key := usagedomain.Key{
		UserID:  job.UserID,
		Feature: tier.Feature(job.Feature),
		Period:  period.Period{Start: job.PeriodStart, End: job.PeriodEnd},
	}

	if w.locker != nil {
		lockKey := "usage:track:" + job.UserID.String() + ":" + job.Feature
		lease, ok, err := w.locker.Acquire(ctx, lockKey, w.cfg.JobTimeout)
		if err == nil && !ok {
			// Another instance holds the key; leave the job pending.
			return false, nil
		}
		if err == nil {
			defer func() { _ = lease.Release(ctx) }()
		}
	}

	applied := false
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := w.jobRepo.MarkApplied(ctx, tx, job.ID)
		if err != nil {
			return err
		}
		if !ok {
			// Already applied elsewhere.
			return nil
		}
		_, err = w.usageRepo.Increment(ctx, tx, key, job.Delta, nil)
		if err == nil {
			applied = true
		}
		return err
	})
	return applied, err
}
