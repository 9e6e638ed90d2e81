package magiclink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Store interface {
	Create(ctx context.Context, token *MagicLinkToken) error
	FindActiveByEmail(ctx context.Context, email string, now time.Time) ([]MagicLinkToken, error)
	FindByEmailAndHash(ctx context.Context, email, tokenHash string) (*MagicLinkToken, error)
	MarkUsed(ctx context.Context, id uint, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	CountByEmail(ctx context.Context, email string) (int64, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, token *MagicLinkToken) error {
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to create magic link token: %w", err)
	}
	return nil
}

func (s *GormStore) FindActiveByEmail(ctx context.Context, email string, now time.Time) ([]MagicLinkToken, error) {
	var tokens []MagicLinkToken
	err := s.db.WithContext(ctx).
		Where("email = ? AND used = ? AND expires_at > ?", email, false, now).
		Order("created_at DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load magic link tokens: %w", err)
	}
	return tokens, nil
}

func (s *GormStore) FindByEmailAndHash(ctx context.Context, email, tokenHash string) (*MagicLinkToken, error) {
	var token MagicLinkToken
	err := s.db.WithContext(ctx).
		Where("email = ? AND token_hash = ?", email, tokenHash).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load magic link token: %w", err)
	}
	return &token, nil
}

// MarkUsed reports false when the row was already consumed or has expired.
func (s *GormStore) MarkUsed(ctx context.Context, id uint, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&MagicLinkToken{}).
		Where("id = ? AND used = ? AND expires_at > ?", id, false, now).
		Updates(map[string]any{
			"used":    true,
			"used_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark magic link token used: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR (used = ? AND used_at < ?)", before, true, before).
		Delete(&MagicLinkToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired magic link tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) CountByEmail(ctx context.Context, email string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&MagicLinkToken{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count magic link tokens: %w", err)
	}
	return count, nil
}
