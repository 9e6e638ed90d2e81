package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/zap"
)

var ErrMissingTokenID = errors.New("token has no id")

type Service struct {
	store  Store
	logger *logging.Service
	now    func() time.Time
}

func NewService(store Store, logger *logging.Service) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return ErrMissingTokenID
	}
	if !expiresAt.After(s.now()) {
		return nil
	}

	if err := s.store.Revoke(ctx, jti, expiresAt); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to revoke token", zap.String("jti", jti), zap.Error(err))
		}
		return err
	}

	if s.logger != nil {
		s.logger.Info("token revoked", zap.String("jti", jti), zap.Time("expires_at", expiresAt))
	}
	return nil
}

func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, ErrMissingTokenID
	}
	return s.store.IsRevoked(ctx, jti, s.now())
}

func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to clean up revoked tokens", zap.Error(err))
		}
		return 0, err
	}

	if s.logger != nil && removed > 0 {
		s.logger.Info("expired revocations cleaned up", zap.Int64("tokens_removed", removed))
	}
	return removed, nil
}
