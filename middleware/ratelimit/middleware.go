package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/zap"
)

type Config struct {
	Store          Store
	Rate           int
	Period         time.Duration
	CountMode      config.CountingMode
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
	Logger         *logging.Service
	Now            func() time.Time
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}
	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}
	if cfg.CountMode == "" {
		cfg.CountMode = config.CountAll
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := cfg.KeyGenerator(c)
			now := cfg.Now()

			count, resetAt, err := cfg.Store.Get(ctx, key, now)
			if err != nil {
				cfg.Logger.Error("rate limit store unavailable", zap.Error(err))
				return next(c)
			}
			if resetAt.IsZero() {
				resetAt = now.Add(cfg.Period)
			}

			if count >= cfg.Rate {
				return limitReached(c, cfg, key, now, resetAt)
			}

			newCount, err := cfg.Store.Increment(ctx, key, now, resetAt)
			if err != nil {
				cfg.Logger.Error("rate limit increment failed", zap.Error(err))
				return next(c)
			}
			if newCount > cfg.Rate {
				cfg.giveBack(c, key, now)
				return limitReached(c, cfg, key, now, resetAt)
			}

			setHeaders(c, cfg.Rate, cfg.Rate-newCount, resetAt)
			handlerErr := next(c)

			if cfg.CountMode != config.CountAll {
				status := responseStatus(c, handlerErr)
				counted := (cfg.CountMode == config.CountFailures && status >= 400) ||
					(cfg.CountMode == config.CountSuccess && status < 400)
				if !counted {
					cfg.giveBack(c, key, now)
				}
			}

			return handlerErr
		}
	}
}

func limitReached(c echo.Context, cfg *Config, key string, now, resetAt time.Time) error {
	setHeaders(c, cfg.Rate, 0, resetAt)
	c.Response().Header().Set("Retry-After", strconv.Itoa(max(int(resetAt.Sub(now).Seconds()), 1)))
	cfg.Logger.Warn("rate limit exceeded",
		zap.String("key", key),
		zap.String("path", c.Path()))
	return cfg.OnLimitReached(c)
}

func (cfg *Config) giveBack(c echo.Context, key string, now time.Time) {
	if err := cfg.Store.Decrement(c.Request().Context(), key, now); err != nil {
		cfg.Logger.Error("rate limit decrement failed", zap.Error(err))
	}
}

func setHeaders(c echo.Context, limit, remaining int, resetAt time.Time) {
	header := c.Response().Header()
	header.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	header.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}

func clientIP(c echo.Context) string {
	realIP := c.RealIP()
	if realIP == "" || realIP == "unknown" {
		return "fallback"
	}
	return realIP
}

func DefaultKeyGenerator(c echo.Context) string {
	return "rate_limit:" + clientIP(c)
}

func ScopedKeyGenerator(scope string) func(c echo.Context) string {
	return func(c echo.Context) string {
		return "rate_limit:" + scope + ":" + clientIP(c)
	}
}

func SecureKeyGenerator(c echo.Context) string {
	sum := sha256.Sum256([]byte(c.Request().UserAgent()))
	return DefaultKeyGenerator(c) + ":" + hex.EncodeToString(sum[:4])
}

func DefaultOnLimitReached(c echo.Context) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please try again later")
}
