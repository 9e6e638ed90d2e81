package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken     = errors.New("invalid JWT token")
	ErrExpiredToken     = errors.New("JWT token has expired")
	ErrMalformedToken   = errors.New("malformed JWT token")
	ErrInvalidSignature = errors.New("invalid JWT token signature")
	ErrNotConfigured    = errors.New("JWT secret key is not configured")
	ErrTokenRevoked     = errors.New("JWT token has been revoked")
	ErrNoRevocation     = errors.New("JWT revocation is not available")
)

const TokenTypeAccess = "access"

type Claims struct {
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

type RevocationService interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
}

type Service struct {
	config            *config.JWTConfig
	logger            *logging.Service
	now               func() time.Time
	revocationService RevocationService
}

func NewService(cfg *config.JWTConfig, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) SetRevocationService(revocationService RevocationService) {
	s.revocationService = revocationService
}

func (s *Service) Enabled() bool {
	return s.config.SecretKey != ""
}

func (s *Service) GetAccessExpirySeconds() int {
	return int(s.config.AccessExpiry.Seconds())
}

func (s *Service) GenerateToken(userID uint, email string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrNotConfigured
	}

	now := s.now()
	expiresAt := now.Add(s.config.AccessExpiry)
	claims := Claims{
		UserID:    userID,
		Email:     email,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.config.Issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  []string{s.config.Issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign JWT token", zap.Error(err))
		}
		return "", time.Time{}, fmt.Errorf("failed to generate JWT token: %w", err)
	}

	return tokenString, jwt.NewNumericDate(expiresAt).Time, nil
}

func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}
		return []byte(s.config.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithAudience(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("JWT token validation failed", zap.Error(err))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidToken
	}

	if s.revocationService != nil {
		revoked, err := s.revocationService.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("failed to check token revocation status", zap.Error(err))
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if revoked {
			if s.logger != nil {
				s.logger.Warn("token validation failed - token has been revoked", zap.String("jti", claims.ID))
			}
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

func (s *Service) RevokeToken(ctx context.Context, claims *Claims) error {
	if s.revocationService == nil {
		return ErrNoRevocation
	}
	if claims == nil || claims.ExpiresAt == nil {
		return ErrInvalidToken
	}

	if err := s.revocationService.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
