package magiclink

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/services/accounts"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/zap"
)

const (
	ValidatePath = "/auth/magic-link/validate"
	TemplateName = "magic_link"

	maxUserAgentLength = 512
	maxIPAddressLength = 45
)

type Mailer interface {
	SendTemplate(ctx context.Context, templateName string, to []string, subject string, data map[string]any) error
}

type AccountDirectory interface {
	Exists(ctx context.Context, email string) (bool, error)
	FindByEmail(ctx context.Context, email string) (*accounts.Account, error)
	FindByID(ctx context.Context, id uint) (*accounts.Account, error)
	GetOrCreate(ctx context.Context, email string) (*accounts.Account, bool, error)
	RecordLogin(ctx context.Context, id uint) error
}

type Result struct {
	Email   string
	TokenID uint
	UsedAt  time.Time
	Account *accounts.Account
}

type Service struct {
	config   config.MagicLinkConfig
	appName  string
	baseURL  string
	store    Store
	mailer   Mailer
	accounts AccountDirectory
	logger   *logging.Service
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = func() time.Time { return now().UTC() }
	}
}

func WithAccounts(directory AccountDirectory) Option {
	return func(s *Service) {
		s.accounts = directory
	}
}

func NewService(cfg *config.Config, store Store, mailer Mailer, logger *logging.Service, opts ...Option) *Service {
	baseURL := cfg.MagicLink.BaseURL
	if baseURL == "" {
		baseURL = cfg.App.URL
	}

	s := &Service{
		config:  cfg.MagicLink,
		appName: cfg.App.Name,
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		mailer:  mailer,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger != nil {
		s.logger.Info("magic link service initialised",
			zap.Duration("expiry", s.config.Expiry()),
			zap.Int("token_bytes", s.config.TokenBytes),
			zap.Bool("require_account", s.config.RequireAccount))
	}
	return s
}

func (s *Service) Expiry() time.Duration {
	return s.config.Expiry()
}

func NormalizeAndValidateEmail(email string) (string, error) {
	normalized := accounts.NormalizeEmail(email)
	if normalized == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}
	return normalized, nil
}

// Create issues a new link for email and asks the mailer to deliver it. When
// delivery fails the stored record is kept and the link is returned alongside
// an error wrapping ErrDeliveryFailure.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Link, error) {
	email, err := NormalizeAndValidateEmail(req.Email)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("magic link request rejected: malformed email")
		}
		return nil, err
	}

	var userID *uint
	if s.accounts != nil {
		account, err := s.accounts.FindByEmail(ctx, email)
		switch {
		case err == nil:
			userID = &account.ID
		case errors.Is(err, accounts.ErrAccountNotFound):
			if s.config.RequireAccount {
				if s.logger != nil {
					s.logger.Info("magic link requested for unknown account", zap.String("email", email))
				}
				return nil, ErrNotFound
			}
		default:
			return nil, err
		}
	}

	secret, err := GenerateSecret(s.config.TokenBytes)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to generate magic link secret", zap.Error(err))
		}
		return nil, err
	}

	now := s.now()
	record := &MagicLinkToken{
		Email:     email,
		TokenHash: HashSecret(secret),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.Expiry()),
		UserAgent: truncate(req.UserAgent, maxUserAgentLength),
		IPAddress: truncate(req.IPAddress, maxIPAddressLength),
		UserID:    userID,
	}

	if err := s.store.Create(ctx, record); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to store magic link", zap.String("email", email), zap.Error(err))
		}
		return nil, err
	}

	link := &Link{
		ID:        record.ID,
		Email:     email,
		Token:     secret,
		URL:       s.buildURL(secret, email),
		ExpiresAt: record.ExpiresAt,
	}

	if s.logger != nil {
		s.logger.Info("magic link issued",
			zap.Uint("token_id", record.ID),
			zap.String("email", email),
			zap.String("token_hash", hashPrefix(record.TokenHash)),
			zap.Time("expires_at", record.ExpiresAt))
	}

	if err := s.deliver(ctx, link, req); err != nil {
		if s.logger != nil {
			s.logger.Error("magic link delivery failed",
				zap.Uint("token_id", record.ID),
				zap.String("email", email),
				zap.Error(err))
		}
		return link, fmt.Errorf("%w: %w", ErrDeliveryFailure, err)
	}

	return link, nil
}

func (s *Service) deliver(ctx context.Context, link *Link, req CreateRequest) error {
	if s.mailer == nil {
		return errors.New("mail service not configured")
	}

	data := map[string]any{
		"AppName":       s.appName,
		"Email":         link.Email,
		"MagicLinkURL":  link.URL,
		"ExpiryMinutes": int(s.config.Expiry() / time.Minute),
		"ExpiresAt":     link.ExpiresAt.Format(time.RFC1123),
		"IPAddress":     orUnknown(req.IPAddress),
		"Device":        DescribeDevice(req.UserAgent),
	}

	subject := fmt.Sprintf("Your %s login link", s.appName)
	return s.mailer.SendTemplate(ctx, TemplateName, []string{link.Email}, subject, data)
}

func (s *Service) buildURL(secret, email string) string {
	return s.baseURL + ValidatePath + "?token=" + url.QueryEscape(secret) + "&email=" + url.QueryEscape(email)
}

func (s *Service) Validate(ctx context.Context, token, email string) (*Result, error) {
	email, err := NormalizeAndValidateEmail(email)
	if err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}

	now := s.now()
	presented := HashSecret(token)

	candidates, err := s.store.FindActiveByEmail(ctx, email, now)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to load magic link candidates", zap.String("email", email), zap.Error(err))
		}
		return nil, err
	}

	var match *MagicLinkToken
	for i := range candidates {
		if hashesEqual(candidates[i].TokenHash, presented) && match == nil {
			match = &candidates[i]
		}
	}

	if match == nil {
		reason := s.diagnose(ctx, email, presented, now)
		s.logRejection(email, presented, reason)
		return nil, reject(reason)
	}

	if err := s.MarkUsed(ctx, match); err != nil {
		if reason, ok := RejectionReason(err); ok {
			s.logRejection(email, presented, reason)
		}
		return nil, err
	}

	result := &Result{
		Email:   email,
		TokenID: match.ID,
		UsedAt:  *match.UsedAt,
	}

	if s.accounts != nil {
		account, err := s.resolveAccount(ctx, match)
		if err != nil {
			if reason, ok := RejectionReason(err); ok {
				s.logRejection(email, presented, reason)
			}
			return nil, err
		}
		result.Account = account
	}

	if s.logger != nil {
		fields := []zap.Field{
			zap.Uint("token_id", match.ID),
			zap.String("email", email),
			zap.String("token_hash", hashPrefix(presented)),
		}
		if result.Account != nil {
			fields = append(fields, zap.Uint("account_id", result.Account.ID))
		}
		s.logger.Info("magic link consumed", fields...)
	}

	return result, nil
}

func (s *Service) MarkUsed(ctx context.Context, record *MagicLinkToken) error {
	now := s.now()

	ok, err := s.store.MarkUsed(ctx, record.ID, now)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to consume magic link", zap.Uint("token_id", record.ID), zap.Error(err))
		}
		return err
	}
	if !ok {
		return reject(ReasonRace)
	}

	record.Used = true
	record.UsedAt = &now
	return nil
}

func (s *Service) resolveAccount(ctx context.Context, record *MagicLinkToken) (*accounts.Account, error) {
	var (
		account *accounts.Account
		err     error
	)

	switch {
	case record.UserID != nil:
		account, err = s.accounts.FindByID(ctx, *record.UserID)
	case s.config.AutoCreate:
		account, _, err = s.accounts.GetOrCreate(ctx, record.Email)
	default:
		account, err = s.accounts.FindByEmail(ctx, record.Email)
	}

	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to resolve account for magic link", zap.String("email", record.Email), zap.Error(err))
		}
		return nil, err
	}

	if !account.Active {
		return nil, reject(ReasonInactive)
	}

	if err := s.accounts.RecordLogin(ctx, account.ID); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to record login", zap.Uint("account_id", account.ID), zap.Error(err))
		}
	}

	return account, nil
}

func (s *Service) diagnose(ctx context.Context, email, presented string, now time.Time) Reason {
	record, err := s.store.FindByEmailAndHash(ctx, email, presented)
	if err == nil {
		if record.Used {
			return ReasonUsed
		}
		if !now.Before(record.ExpiresAt) {
			return ReasonExpired
		}
		return ReasonMismatch
	}

	count, err := s.store.CountByEmail(ctx, email)
	if err == nil && count == 0 {
		return ReasonNoRecord
	}
	return ReasonMismatch
}

func (s *Service) logRejection(email, presentedHash string, reason Reason) {
	if s.logger != nil {
		s.logger.Warn("magic link rejected",
			zap.String("email", email),
			zap.String("token_hash", hashPrefix(presentedHash)),
			zap.String("reason", string(reason)))
	}
}

func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.Retention)

	removed, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to clean up magic links", zap.Error(err))
		}
		return 0, err
	}

	if s.logger != nil && removed > 0 {
		s.logger.Info("expired magic links cleaned up", zap.Int64("tokens_removed", removed))
	}
	return removed, nil
}

func truncate(value string, max int) string {
	value = strings.ToValidUTF8(value, "")
	if len(value) <= max {
		return value
	}
	for max > 0 && !utf8.RuneStart(value[max]) {
		max--
	}
	return value[:max]
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
