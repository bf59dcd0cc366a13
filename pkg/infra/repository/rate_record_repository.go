package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexportal/claimshield/pkg/domain/ratelimit"
)

type rateRecordRepository struct {
	db *gorm.DB
}

// NewRateRecordRepository returns the postgres-backed limiter store. The
// increment is a single conditional upsert, so concurrent requests for the
// same (key, bucket) can never lose counts.
func NewRateRecordRepository(db *gorm.DB) ratelimit.Repository {
	return &rateRecordRepository{db: db}
}

func (r *rateRecordRepository) IncrementOrCreate(ctx context.Context, record *ratelimit.Record) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}, {Name: "bucket"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("rate_limit_records.count + ?", record.Count),
		}),
	}).Create(record).Error
}

func (r *rateRecordRepository) UsageSince(ctx context.Context, key string, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&ratelimit.Record{}).
		Where("key = ? AND bucket >= ?", key, since).
		Select("COALESCE(SUM(count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *rateRecordRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("bucket < ?", cutoff).
		Delete(&ratelimit.Record{})
	return result.RowsAffected, result.Error
}
