package revocation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RevokedToken struct {
	ID        uint      `gorm:"primarykey"`
	JTI       string    `gorm:"column:jti;uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

type Store interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time)}
}

func (m *MemoryStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[jti] = expiresAt
	return nil
}

func (m *MemoryStore) IsRevoked(_ context.Context, jti string, now time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expiresAt, ok := m.tokens[jti]
	return ok && now.Before(expiresAt), nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for jti, expiresAt := range m.tokens {
		if !now.Before(expiresAt) {
			delete(m.tokens, jti)
			removed++
		}
	}
	return removed, nil
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&RevokedToken{}); err != nil {
		return nil, fmt.Errorf("failed to migrate revoked tokens table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "jti"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(&RevokedToken{JTI: jti, ExpiresAt: expiresAt.UTC()}).Error
	if err != nil {
		return fmt.Errorf("failed to store revoked token: %w", err)
	}
	return nil
}

func (s *GormStore) IsRevoked(ctx context.Context, jti string, now time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, now.UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&RevokedToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired revoked tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
