package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is inactive")
)

type Service struct {
	db     *gorm.DB
	logger *logging.Service
	now    func() time.Time
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &account, nil
}

func (s *Service) FindByID(ctx context.Context, id uint) (*Account, error) {
	var account Account
	if err := s.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &account, nil
}

func (s *Service) Exists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Account{}).Where("email = ?", NormalizeEmail(email)).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return count > 0, nil
}

func (s *Service) Create(ctx context.Context, email, name string) (*Account, error) {
	account := &Account{
		Email:  NormalizeEmail(email),
		Name:   strings.TrimSpace(name),
		Active: true,
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account created", zap.Uint("account_id", account.ID), zap.String("email", account.Email))
	return account, nil
}

func (s *Service) GetOrCreate(ctx context.Context, email string) (*Account, bool, error) {
	normalized := NormalizeEmail(email)

	account, err := s.FindByEmail(ctx, normalized)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	candidate := &Account{Email: normalized, Name: nameFromEmail(normalized), Active: true}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(candidate)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		account, err := s.FindByEmail(ctx, normalized)
		return account, false, err
	}

	s.logger.Info("account created on first login", zap.Uint("account_id", candidate.ID), zap.String("email", normalized))
	return candidate, true, nil
}

func (s *Service) RecordLogin(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Update("last_login_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("failed to record login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *Service) SetActive(ctx context.Context, id uint, active bool) error {
	result := s.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, part := range parts {
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
