package magiclink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/services/accounts"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"github.com/tech-arch1tect/payslip-auth/testutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"

type fixture struct {
	service  *Service
	store    *GormStore
	db       *gorm.DB
	mailer   *testutils.MockMailService
	accounts *accounts.Service
	clock    *testutils.Clock
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := testutils.GetTestConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db := testutils.SetupTestDB(t, &MagicLinkToken{}, &accounts.Account{})
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.NewFromZap(zap.New(core))

	mailer := &testutils.MockMailService{}
	mailer.On("SendTemplate", mock.Anything, TemplateName, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	clock := testutils.NewClock(t0)
	directory := accounts.NewService(db, nil)
	directory.SetClock(clock.Now)

	store := NewGormStore(db)
	service := NewService(cfg, store, mailer, logger, WithClock(clock.Now), WithAccounts(directory))

	return &fixture{
		service:  service,
		store:    store,
		db:       db,
		mailer:   mailer,
		accounts: directory,
		clock:    clock,
		logs:     logs,
	}
}

func (f *fixture) create(t *testing.T, email string) *Link {
	t.Helper()
	link, err := f.service.Create(context.Background(), CreateRequest{
		Email:     email,
		IPAddress: "203.0.113.7",
		UserAgent: testUserAgent,
	})
	require.NoError(t, err)
	return link
}

func (f *fixture) tokenCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&MagicLinkToken{}).Count(&count).Error)
	return count
}

func assertRejected(t *testing.T, err error, reason Reason) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	got, ok := RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, reason, got)
}

func TestNormalizeAndValidateEmail(t *testing.T) {
	email, err := NormalizeAndValidateEmail(testutils.TestEmails.Mixed)
	require.NoError(t, err)
	assert.Equal(t, testutils.TestEmails.Valid, email)

	for _, malformed := range testutils.TestEmails.Malformed {
		t.Run(fmt.Sprintf("%q", malformed), func(t *testing.T) {
			_, err := NormalizeAndValidateEmail(malformed)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestService_Create(t *testing.T) {
	t.Run("stores only the hash", func(t *testing.T) {
		f := newFixture(t)

		link := f.create(t, testutils.TestEmails.Valid)

		assert.Len(t, link.Token, 64)

		var record MagicLinkToken
		require.NoError(t, f.db.First(&record, link.ID).Error)
		assert.Equal(t, HashSecret(link.Token), record.TokenHash)
		assert.NotEqual(t, link.Token, record.TokenHash)

		var hits int64
		require.NoError(t, f.db.Model(&MagicLinkToken{}).
			Where("token_hash = ? OR email = ? OR user_agent = ? OR ip_address = ?", link.Token, link.Token, link.Token, link.Token).
			Count(&hits).Error)
		assert.Zero(t, hits)
	})

	t.Run("record fields", func(t *testing.T) {
		f := newFixture(t)

		link := f.create(t, testutils.TestEmails.Mixed)

		var record MagicLinkToken
		require.NoError(t, f.db.First(&record, link.ID).Error)
		assert.Equal(t, testutils.TestEmails.Valid, record.Email)
		assert.True(t, record.CreatedAt.Equal(t0))
		assert.True(t, record.ExpiresAt.Equal(t0.Add(15*time.Minute)))
		assert.True(t, link.ExpiresAt.Equal(record.ExpiresAt))
		assert.False(t, record.Used)
		assert.Nil(t, record.UsedAt)
		assert.Equal(t, "203.0.113.7", record.IPAddress)
		assert.Equal(t, testUserAgent, record.UserAgent)
		assert.Nil(t, record.UserID)
	})

	t.Run("long multi-byte user agent stays valid utf-8", func(t *testing.T) {
		f := newFixture(t)
		userAgent := strings.Repeat("a", maxUserAgentLength-1) + "é"

		link, err := f.service.Create(context.Background(), CreateRequest{
			Email:     testutils.TestEmails.Valid,
			IPAddress: "203.0.113.7",
			UserAgent: userAgent,
		})
		require.NoError(t, err)

		var record MagicLinkToken
		require.NoError(t, f.db.First(&record, link.ID).Error)
		assert.True(t, utf8.ValidString(record.UserAgent))
		assert.Equal(t, strings.Repeat("a", maxUserAgentLength-1), record.UserAgent)
	})

	t.Run("link url", func(t *testing.T) {
		f := newFixture(t)

		link := f.create(t, testutils.TestEmails.Valid)

		parsed, err := url.Parse(link.URL)
		require.NoError(t, err)
		assert.Equal(t, "http", parsed.Scheme)
		assert.Equal(t, "localhost:8080", parsed.Host)
		assert.Equal(t, ValidatePath, parsed.Path)
		assert.Equal(t, link.Token, parsed.Query().Get("token"))
		assert.Equal(t, testutils.TestEmails.Valid, parsed.Query().Get("email"))
		assert.True(t, strings.HasPrefix(parsed.RawQuery, "token="))
	})

	t.Run("base url override", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) {
			cfg.MagicLink.BaseURL = "https://payslips.example.org/"
		})

		link := f.create(t, testutils.TestEmails.Valid)

		assert.True(t, strings.HasPrefix(link.URL, "https://payslips.example.org"+ValidatePath+"?token="))
	})

	t.Run("delivery request", func(t *testing.T) {
		f := newFixture(t)

		link := f.create(t, testutils.TestEmails.Valid)

		f.mailer.AssertCalled(t, "SendTemplate", mock.Anything, TemplateName,
			[]string{testutils.TestEmails.Valid}, "Your Payslip Manager login link", mock.Anything)

		data := f.mailer.LastData()
		assert.Equal(t, link.URL, data["MagicLinkURL"])
		assert.Equal(t, 15, data["ExpiryMinutes"])
		assert.Equal(t, "203.0.113.7", data["IPAddress"])
		assert.Contains(t, data["Device"], "Safari")
		assert.Equal(t, "Payslip Manager", data["AppName"])
	})

	t.Run("configured expiry", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) {
			cfg.MagicLink.ExpiryMinutes = 5
		})

		link := f.create(t, testutils.TestEmails.Valid)

		assert.True(t, link.ExpiresAt.Equal(t0.Add(5*time.Minute)))
	})

	t.Run("configured token length", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) {
			cfg.MagicLink.TokenBytes = 48
		})

		link := f.create(t, testutils.TestEmails.Valid)

		assert.Len(t, link.Token, 96)
	})

	t.Run("each request issues a distinct link", func(t *testing.T) {
		f := newFixture(t)

		first := f.create(t, testutils.TestEmails.Valid)
		second := f.create(t, testutils.TestEmails.Valid)

		assert.NotEqual(t, first.Token, second.Token)
		assert.Equal(t, int64(2), f.tokenCount(t))
	})

	t.Run("links existing account", func(t *testing.T) {
		f := newFixture(t)
		account, err := f.accounts.Create(context.Background(), testutils.TestEmails.Valid, "Jane")
		require.NoError(t, err)

		link := f.create(t, testutils.TestEmails.Valid)

		var record MagicLinkToken
		require.NoError(t, f.db.First(&record, link.ID).Error)
		require.NotNil(t, record.UserID)
		assert.Equal(t, account.ID, *record.UserID)
	})
}

func TestService_Create_MalformedEmail(t *testing.T) {
	for _, malformed := range testutils.TestEmails.Malformed {
		t.Run(fmt.Sprintf("%q", malformed), func(t *testing.T) {
			f := newFixture(t)

			link, err := f.service.Create(context.Background(), CreateRequest{Email: malformed})

			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, link)
			assert.Zero(t, f.tokenCount(t))
			f.mailer.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_Create_DeliveryFailure(t *testing.T) {
	ctx := context.Background()
	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &MagicLinkToken{})
	clock := testutils.NewClock(t0)

	mailer := &testutils.MockMailService{}
	mailer.On("SendTemplate", mock.Anything, TemplateName, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("dial tcp: connection refused"))

	service := NewService(cfg, NewGormStore(db), mailer, nil, WithClock(clock.Now))

	link, err := service.Create(ctx, CreateRequest{Email: testutils.TestEmails.Valid})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailure)
	assert.Contains(t, err.Error(), "connection refused")
	require.NotNil(t, link)

	var count int64
	require.NoError(t, db.Model(&MagicLinkToken{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	t.Run("kept record still validates", func(t *testing.T) {
		result, err := service.Validate(ctx, link.Token, link.Email)

		require.NoError(t, err)
		assert.Equal(t, link.ID, result.TokenID)
		assert.Nil(t, result.Account)
	})

	t.Run("no mailer configured", func(t *testing.T) {
		service := NewService(cfg, NewGormStore(db), nil, nil, WithClock(clock.Now))

		link, err := service.Create(ctx, CreateRequest{Email: testutils.TestEmails.Other})

		assert.ErrorIs(t, err, ErrDeliveryFailure)
		assert.NotNil(t, link)
	})
}

func TestService_Create_RequireAccount(t *testing.T) {
	requireAccount := func(cfg *config.Config) { cfg.MagicLink.RequireAccount = true }

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture(t, requireAccount)

		link, err := f.service.Create(context.Background(), CreateRequest{Email: testutils.TestEmails.Valid})

		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, link)
		assert.Zero(t, f.tokenCount(t))
		f.mailer.AssertNotCalled(t, "SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("known email", func(t *testing.T) {
		f := newFixture(t, requireAccount)
		_, err := f.accounts.Create(context.Background(), testutils.TestEmails.Valid, "Jane")
		require.NoError(t, err)

		link := f.create(t, testutils.TestEmails.Mixed)

		assert.NotEmpty(t, link.Token)
	})
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid within window then replay rejected", func(t *testing.T) {
		f := newFixture(t)
		link := f.create(t, testutils.TestEmails.Valid)

		f.clock.Set(t0.Add(14 * time.Minute))
		result, err := f.service.Validate(ctx, link.Token, testutils.TestEmails.Valid)

		require.NoError(t, err)
		assert.Equal(t, link.ID, result.TokenID)
		assert.Equal(t, testutils.TestEmails.Valid, result.Email)
		assert.True(t, result.UsedAt.Equal(t0.Add(14*time.Minute)))

		var record MagicLinkToken
		require.NoError(t, f.db.First(&record, link.ID).Error)
		assert.True(t, record.Used)
		require.NotNil(t, record.UsedAt)
		assert.True(t, record.UsedAt.Equal(t0.Add(14*time.Minute)))

		f.clock.Set(t0.Add(14*time.Minute + time.Second))
		_, err = f.service.Validate(ctx, link.Token, testutils.TestEmails.Valid)

		assertRejected(t, err, ReasonUsed)
	})

	t.Run("expired after window", func(t *testing.T) {
		f := newFixture(t)
		link := f.create(t, testutils.TestEmails.Valid)

		f.clock.Set(t0.Add(16 * time.Minute))
		_, err := f.service.Validate(ctx, link.Token, testutils.TestEmails.Valid)

		assertRejected(t, err, ReasonExpired)

		var record MagicLinkToken
		require.NoError(t, f.db.First(&record, link.ID).Error)
		assert.False(t, record.Used)
	})

	t.Run("expiry instant is exclusive", func(t *testing.T) {
		f := newFixture(t)
		link := f.create(t, testutils.TestEmails.Valid)

		f.clock.Set(t0.Add(15 * time.Minute))
		_, err := f.service.Validate(ctx, link.Token, testutils.TestEmails.Valid)

		assertRejected(t, err, ReasonExpired)
	})

	t.Run("email is normalized", func(t *testing.T) {
		f := newFixture(t)
		link := f.create(t, testutils.TestEmails.Valid)

		_, err := f.service.Validate(ctx, link.Token, testutils.TestEmails.Mixed)

		assert.NoError(t, err)
	})

	t.Run("wrong token", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, testutils.TestEmails.Valid)

		_, err := f.service.Validate(ctx, strings.Repeat("ab", 32), testutils.TestEmails.Valid)

		assertRejected(t, err, ReasonMismatch)
	})

	t.Run("token presented for another email", func(t *testing.T) {
		f := newFixture(t)
		link := f.create(t, testutils.TestEmails.Valid)
		f.create(t, testutils.TestEmails.Other)

		_, err := f.service.Validate(ctx, link.Token, testutils.TestEmails.Other)

		assertRejected(t, err, ReasonMismatch)

		_, err = f.service.Validate(ctx, link.Token, testutils.TestEmails.Valid)
		assert.NoError(t, err)
	})

	t.Run("no record for email", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Validate(ctx, strings.Repeat("ab", 32), testutils.TestEmails.Valid)

		assertRejected(t, err, ReasonNoRecord)
	})

	t.Run("all rejections look identical", func(t *testing.T) {
		f := newFixture(t)
		used := f.create(t, testutils.TestEmails.Valid)
		_, err := f.service.Validate(ctx, used.Token, used.Email)
		require.NoError(t, err)

		_, errUsed := f.service.Validate(ctx, used.Token, used.Email)
		_, errMismatch := f.service.Validate(ctx, "deadbeef", used.Email)
		_, errUnknown := f.service.Validate(ctx, "deadbeef", testutils.TestEmails.Other)

		assert.Equal(t, errUsed.Error(), errMismatch.Error())
		assert.Equal(t, errUsed.Error(), errUnknown.Error())
	})

	t.Run("malformed input", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Validate(ctx, "abc", "not-an-email")
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.service.Validate(ctx, "  ", testutils.TestEmails.Valid)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("several outstanding links are independent", func(t *testing.T) {
		f := newFixture(t)
		first := f.create(t, testutils.TestEmails.Valid)
		f.clock.Advance(time.Minute)
		second := f.create(t, testutils.TestEmails.Valid)

		_, err := f.service.Validate(ctx, first.Token, testutils.TestEmails.Valid)
		require.NoError(t, err)

		_, err = f.service.Validate(ctx, second.Token, testutils.TestEmails.Valid)
		assert.NoError(t, err)
	})
}

func TestService_Validate_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	link := f.create(t, testutils.TestEmails.Valid)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.Validate(ctx, link.Token, testutils.TestEmails.Valid)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInvalidOrExpiredToken):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, rejected)
}

func TestService_MarkUsed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	link := f.create(t, testutils.TestEmails.Valid)

	var record MagicLinkToken
	require.NoError(t, f.db.First(&record, link.ID).Error)

	f.clock.Set(t0.Add(time.Minute))
	require.NoError(t, f.service.MarkUsed(ctx, &record))
	assert.True(t, record.Used)
	require.NotNil(t, record.UsedAt)

	stale := record
	stale.Used = false
	f.clock.Set(t0.Add(2 * time.Minute))
	err := f.service.MarkUsed(ctx, &stale)

	assertRejected(t, err, ReasonRace)

	var reloaded MagicLinkToken
	require.NoError(t, f.db.First(&reloaded, link.ID).Error)
	assert.True(t, reloaded.UsedAt.Equal(t0.Add(time.Minute)))
}

func TestService_Validate_Accounts(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account on first login", func(t *testing.T) {
		f := newFixture(t)
		link := f.create(t, testutils.TestEmails.Valid)
		f.clock.Set(t0.Add(time.Minute))

		result, err := f.service.Validate(ctx, link.Token, link.Email)

		require.NoError(t, err)
		require.NotNil(t, result.Account)
		assert.Equal(t, testutils.TestEmails.Valid, result.Account.Email)

		account, err := f.accounts.FindByEmail(ctx, testutils.TestEmails.Valid)
		require.NoError(t, err)
		require.NotNil(t, account.LastLoginAt)
		assert.True(t, account.LastLoginAt.Equal(t0.Add(time.Minute)))
	})

	t.Run("uses linked account", func(t *testing.T) {
		f := newFixture(t)
		existing, err := f.accounts.Create(ctx, testutils.TestEmails.Valid, "Jane")
		require.NoError(t, err)
		link := f.create(t, testutils.TestEmails.Valid)

		result, err := f.service.Validate(ctx, link.Token, link.Email)

		require.NoError(t, err)
		assert.Equal(t, existing.ID, result.Account.ID)
	})

	t.Run("no account and auto-create disabled", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) { cfg.MagicLink.AutoCreate = false })
		link := f.create(t, testutils.TestEmails.Valid)

		_, err := f.service.Validate(ctx, link.Token, link.Email)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("inactive account", func(t *testing.T) {
		f := newFixture(t)
		existing, err := f.accounts.Create(ctx, testutils.TestEmails.Valid, "Jane")
		require.NoError(t, err)
		require.NoError(t, f.accounts.SetActive(ctx, existing.ID, false))
		link := f.create(t, testutils.TestEmails.Valid)

		_, err = f.service.Validate(ctx, link.Token, link.Email)

		assertRejected(t, err, ReasonInactive)
	})
}

func TestService_NeverLogsPlaintext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	link := f.create(t, testutils.TestEmails.Valid)
	_, err := f.service.Validate(ctx, link.Token, link.Email)
	require.NoError(t, err)
	_, err = f.service.Validate(ctx, link.Token, link.Email)
	require.Error(t, err)

	entries := f.logs.All()
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		assert.NotContains(t, entry.Message, link.Token)
		for key, value := range entry.ContextMap() {
			assert.NotContains(t, fmt.Sprint(value), link.Token, "field %s leaks the token", key)
		}
	}

	rejections := f.logs.FilterMessage("magic link rejected").All()
	require.Len(t, rejections, 1)
	assert.Equal(t, string(ReasonUsed), rejections[0].ContextMap()["reason"])
	assert.Equal(t, hashPrefix(HashSecret(link.Token)), rejections[0].ContextMap()["token_hash"])
}

func TestService_CleanupExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("immediate retention", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) { cfg.MagicLink.Retention = 0 })

		expired := f.create(t, testutils.TestEmails.Valid)
		f.clock.Set(t0.Add(20 * time.Minute))
		used := f.create(t, testutils.TestEmails.Valid)
		live := f.create(t, testutils.TestEmails.Valid)
		_, err := f.service.Validate(ctx, used.Token, used.Email)
		require.NoError(t, err)
		f.clock.Advance(time.Second)

		removed, err := f.service.CleanupExpired(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		_, err = f.store.FindByEmailAndHash(ctx, testutils.TestEmails.Valid, HashSecret(live.Token))
		assert.NoError(t, err)
		_, err = f.store.FindByEmailAndHash(ctx, testutils.TestEmails.Valid, HashSecret(expired.Token))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("retention keeps recent history", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, testutils.TestEmails.Valid)

		f.clock.Set(t0.Add(time.Hour))
		removed, err := f.service.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Zero(t, removed)

		f.clock.Set(t0.Add(25 * time.Hour))
		removed, err = f.service.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Firefox", truncate("Firefox", 16))
	assert.Equal(t, "Fire", truncate("Firefox", 4))
	assert.Equal(t, "ab", truncate("abé", 3))
	assert.Equal(t, "abé", truncate("abé", 4))
	assert.Equal(t, "ab", truncate("a\xffb", 16))
}
