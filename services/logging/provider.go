package logging

import (
	"context"

	"github.com/tech-arch1tect/payslip-auth/config"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewLoggingService),
	fx.Invoke(func(lc fx.Lifecycle, logger *Service) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				_ = logger.Sync()
				return nil
			},
		})
	}),
)

func NewLoggingService(cfg *config.Config) (*Service, error) {
	return NewService(ConfigFrom(cfg.Log))
}

func ConfigFrom(cfg config.LogConfig) Config {
	return Config{
		Level:      LogLevel(cfg.Level),
		Format:     cfg.Format,
		OutputPath: cfg.Output,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
