package ratelimit

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewStore(cfg *config.RateLimitConfig, db *gorm.DB) (Store, error) {
	switch cfg.Store {
	case "database":
		return NewGormStore(db)
	default:
		return NewMemoryStore(), nil
	}
}

func ProvideRateLimitStore(lc fx.Lifecycle, cfg *config.Config, db *gorm.DB) (Store, error) {
	store, err := NewStore(&cfg.RateLimit, db)
	if err != nil {
		return nil, err
	}
	switch s := store.(type) {
	case *MemoryStore:
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			s.Close()
			return nil
		}})
	case *GormStore:
		lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
			_, err := s.DeleteExpired(ctx, time.Now())
			return err
		}})
	}
	return store, nil
}

func FromConfig(cfg *config.RateLimitConfig, store Store, scope string, logger *logging.Service) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return Middleware(&Config{
		Store:        store,
		Rate:         cfg.Rate,
		Period:       cfg.Period,
		CountMode:    cfg.CountMode,
		KeyGenerator: ScopedKeyGenerator(scope),
		Logger:       logger,
	})
}

var Module = fx.Options(
	fx.Provide(ProvideRateLimitStore),
)
