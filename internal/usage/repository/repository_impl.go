package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	pkgdb "github.com/smallbiznis/tradeboard/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) usagedomain.Repository {
	return &repo{genID: genID}
}

func (r *repo) Amount(ctx context.Context, db *gorm.DB, key usagedomain.Key) (int64, error) {
	var amount int64
	result := db.WithContext(ctx).Raw(
		`SELECT amount FROM usage_records
		 WHERE user_id = ? AND feature = ? AND period_start = ?`,
		key.UserID, string(key.Feature), key.Period.Start,
	).Scan(&amount)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, nil
	}
	return amount, nil
}

// Increment is an atomic insert-or-increment: two concurrent calls with
// deltas a and b leave the stored amount at previous+a+b regardless of
// interleaving.
func (r *repo) Increment(ctx context.Context, db *gorm.DB, key usagedomain.Key, delta int64, meta datatypes.JSONMap) (int64, error) {
	now := time.Now().UTC()

	if pkgdb.SupportsReturning(db) {
		var amount int64
		result := db.WithContext(ctx).Raw(
			`INSERT INTO usage_records
			   (id, user_id, feature, period_start, period_end, amount, overage_units, overage_cost, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
			 ON CONFLICT (user_id, feature, period_start)
			 DO UPDATE SET amount = usage_records.amount + ?,
			               metadata = COALESCE(?, usage_records.metadata),
			               updated_at = ?
			 RETURNING amount`,
			r.genID.Generate(), key.UserID, string(key.Feature),
			key.Period.Start, key.Period.End, delta, meta, now, now,
			delta, meta, now,
		).Scan(&amount)
		if result.Error != nil {
			return 0, result.Error
		}
		return amount, nil
	}

	// MySQL: upsert then read back inside the caller's transaction.
	err := db.WithContext(ctx).Exec(
		`INSERT INTO usage_records
		   (id, user_id, feature, period_start, period_end, amount, overage_units, overage_cost, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE amount = amount + ?,
		                         metadata = COALESCE(?, metadata),
		                         updated_at = ?`,
		r.genID.Generate(), key.UserID, string(key.Feature),
		key.Period.Start, key.Period.End, delta, meta, now, now,
		delta, meta, now,
	).Error
	if err != nil {
		return 0, err
	}
	return r.Amount(ctx, db, key)
}

// IncrementWithinLimit applies the increment only when the post-increment
// amount stays at or under limit, inside one transaction with the check.
// Zero updated rows is a refusal, not an error.
func (r *repo) IncrementWithinLimit(ctx context.Context, db *gorm.DB, key usagedomain.Key, delta, limit int64) (int64, bool, error) {
	var amount int64
	applied := false

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensureRow(ctx, tx, key); err != nil {
			return err
		}

		now := time.Now().UTC()
		if pkgdb.SupportsReturning(tx) {
			result := tx.Raw(
				`UPDATE usage_records
				 SET amount = amount + ?, updated_at = ?
				 WHERE user_id = ? AND feature = ? AND period_start = ?
				   AND amount + ? <= ?
				 RETURNING amount`,
				delta, now, key.UserID, string(key.Feature), key.Period.Start,
				delta, limit,
			).Scan(&amount)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				applied = true
				return nil
			}
		} else {
			result := tx.Exec(
				`UPDATE usage_records
				 SET amount = amount + ?, updated_at = ?
				 WHERE user_id = ? AND feature = ? AND period_start = ?
				   AND amount + ? <= ?`,
				delta, now, key.UserID, string(key.Feature), key.Period.Start,
				delta, limit,
			)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				applied = true
			}
		}

		current, err := r.Amount(ctx, tx, key)
		if err != nil {
			return err
		}
		amount = current
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return amount, applied, nil
}

func (r *repo) Decrement(ctx context.Context, db *gorm.DB, key usagedomain.Key, delta int64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET amount = amount - ?, updated_at = ?
		 WHERE user_id = ? AND feature = ? AND period_start = ?
		   AND amount >= ?`,
		delta, time.Now().UTC(), key.UserID, string(key.Feature), key.Period.Start,
		delta,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("release_not_applied")
	}
	return nil
}

func (r *repo) AddOverage(ctx context.Context, db *gorm.DB, key usagedomain.Key, units, cost int64, meta datatypes.JSONMap) error {
	return db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET overage_units = overage_units + ?,
		     overage_cost = overage_cost + ?,
		     metadata = COALESCE(?, metadata),
		     updated_at = ?
		 WHERE user_id = ? AND feature = ? AND period_start = ?`,
		units, cost, meta, time.Now().UTC(),
		key.UserID, string(key.Feature), key.Period.Start,
	).Error
}

func (r *repo) Summarize(ctx context.Context, db *gorm.DB, req usagedomain.SummaryRequest) ([]usagedomain.FeatureSummary, error) {
	query := `SELECT feature,
	                 SUM(amount) AS total_amount,
	                 SUM(overage_cost) AS overage_cost,
	                 COUNT(DISTINCT user_id) AS users
	          FROM usage_records
	          WHERE period_start >= ? AND period_start < ?`
	args := []any{req.From, req.To}

	if raw := strings.TrimSpace(req.UserID); raw != "" {
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			return nil, usagedomain.ErrInvalidUser
		}
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY feature ORDER BY feature`

	var rows []usagedomain.FeatureSummary
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ensureRow seeds a zero-amount record so the conditional UPDATE always has
// a target. Lost races fall through to the duplicate-key no-op.
func (r *repo) ensureRow(ctx context.Context, tx *gorm.DB, key usagedomain.Key) error {
	now := time.Now().UTC()

	var stmt string
	if strings.EqualFold(tx.Dialector.Name(), "mysql") {
		stmt = `INSERT IGNORE INTO usage_records
		          (id, user_id, feature, period_start, period_end, amount, overage_units, overage_cost, created_at, updated_at)
		        VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`
	} else {
		stmt = `INSERT INTO usage_records
		          (id, user_id, feature, period_start, period_end, amount, overage_units, overage_cost, created_at, updated_at)
		        VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, ?)
		        ON CONFLICT (user_id, feature, period_start) DO NOTHING`
	}

	err := tx.Exec(stmt,
		r.genID.Generate(), key.UserID, string(key.Feature),
		key.Period.Start, key.Period.End, now, now,
	).Error
	if err != nil && pkgdb.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}
