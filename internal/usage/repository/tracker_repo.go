package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	pkgdb "github.com/smallbiznis/tradeboard/pkg/db"
	"gorm.io/gorm"
)

type trackerRepo struct{}

func ProvideTracker() usagedomain.TrackerRepository {
	return &trackerRepo{}
}

// Enqueue inserts a pending job. A duplicate idempotency key reports false
// so redeliveries collapse to the first insert.
func (r *trackerRepo) Enqueue(ctx context.Context, db *gorm.DB, job *usagedomain.TrackingJob) (bool, error) {
	var stmt string
	if strings.EqualFold(db.Dialector.Name(), "mysql") {
		stmt = `INSERT IGNORE INTO usage_tracking_jobs
		          (id, user_id, feature, period_start, period_end, delta, idempotency_key, status, attempts, created_at, updated_at)
		        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
	} else {
		stmt = `INSERT INTO usage_tracking_jobs
		          (id, user_id, feature, period_start, period_end, delta, idempotency_key, status, attempts, created_at, updated_at)
		        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		        ON CONFLICT (idempotency_key) DO NOTHING`
	}

	result := db.WithContext(ctx).Exec(stmt,
		job.ID, job.UserID, job.Feature, job.PeriodStart, job.PeriodEnd,
		job.Delta, job.IdempotencyKey, usagedomain.JobStatusPending,
		job.CreatedAt, job.UpdatedAt,
	)
	if result.Error != nil {
		if pkgdb.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *trackerRepo) ClaimPending(ctx context.Context, db *gorm.DB, limit int) ([]usagedomain.TrackingJob, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT * FROM usage_tracking_jobs
	          WHERE status = ?
	          ORDER BY created_at ASC
	          LIMIT ?`
	if pkgdb.SupportsRowLocking(db) {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var jobs []usagedomain.TrackingJob
	err := db.WithContext(ctx).Raw(query, usagedomain.JobStatusPending, limit).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkApplied transitions pending -> applied. Zero rows means another
// worker already applied the job; the caller must skip the increment.
func (r *trackerRepo) MarkApplied(ctx context.Context, db *gorm.DB, jobID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE usage_tracking_jobs
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		usagedomain.JobStatusApplied, time.Now().UTC(),
		jobID, usagedomain.JobStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *trackerRepo) MarkFailed(ctx context.Context, db *gorm.DB, jobID snowflake.ID, attempt int, lastError string) error {
	status := usagedomain.JobStatusPending
	if attempt >= maxAttempts {
		status = usagedomain.JobStatusFailed
	}
	return db.WithContext(ctx).Exec(
		`UPDATE usage_tracking_jobs
		 SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		status, attempt, lastError, time.Now().UTC(), jobID,
	).Error
}

const maxAttempts = 5
