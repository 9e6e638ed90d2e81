package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Entry struct {
	Bucket  string    `gorm:"primaryKey;size:255"`
	Hits    int       `gorm:"not null"`
	ResetAt time.Time `gorm:"not null;index"`
}

func (Entry) TableName() string {
	return "rate_limit_entries"
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate rate limit table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(ctx context.Context, key string, now time.Time) (int, time.Time, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("bucket = ? AND reset_at > ?", key, now.UTC()).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to read rate limit entry: %w", err)
	}
	return e.Hits, e.ResetAt, nil
}

func (s *GormStore) Increment(ctx context.Context, key string, now, resetAt time.Time) (int, error) {
	now, resetAt = now.UTC(), resetAt.UTC()

	var hits int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "bucket"}},
			DoUpdates: clause.Assignments(map[string]any{
				"hits":     gorm.Expr("CASE WHEN rate_limit_entries.reset_at > ? THEN rate_limit_entries.hits + 1 ELSE 1 END", now),
				"reset_at": gorm.Expr("CASE WHEN rate_limit_entries.reset_at > ? THEN rate_limit_entries.reset_at ELSE ? END", now, resetAt),
			}),
		}).Create(&Entry{Bucket: key, Hits: 1, ResetAt: resetAt}).Error
		if err != nil {
			return err
		}

		var e Entry
		if err := tx.Where("bucket = ?", key).First(&e).Error; err != nil {
			return err
		}
		hits = e.Hits
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit entry: %w", err)
	}
	return hits, nil
}

func (s *GormStore) Decrement(ctx context.Context, key string, now time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("bucket = ? AND hits > 0 AND reset_at > ?", key, now.UTC()).
		Update("hits", gorm.Expr("hits - 1")).Error
	if err != nil {
		return fmt.Errorf("failed to decrement rate limit entry: %w", err)
	}
	return nil
}

func (s *GormStore) Reset(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("bucket = ?", key).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("failed to reset rate limit entry: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("reset_at <= ?", now.UTC()).Delete(&Entry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired rate limit entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
