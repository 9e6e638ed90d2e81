package magiclink

import (
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/services/accounts"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(
		ProvideStore,
		ProvideService,
		ProvideJanitor,
	),
	fx.Invoke(func(lc fx.Lifecycle, janitor *Janitor) {
		lc.Append(fx.Hook{
			OnStart: janitor.Start,
			OnStop:  janitor.Stop,
		})
	}),
)

func ProvideStore(db *gorm.DB) Store {
	return NewGormStore(db)
}

func ProvideService(cfg *config.Config, store Store, mailer Mailer, directory *accounts.Service, logger *logging.Service) *Service {
	return NewService(cfg, store, mailer, logger.Named("magiclink"), WithAccounts(directory))
}

type JanitorParams struct {
	fx.In
	Config   *config.Config
	Service  *Service
	Cleaners []Cleaner `group:"cleaners"`
	Logger   *logging.Service
}

func ProvideJanitor(p JanitorParams) *Janitor {
	cleaners := append(Cleaners{p.Service}, p.Cleaners...)
	return NewJanitor(cleaners, p.Config.MagicLink.CleanupInterval, p.Logger.Named("janitor"))
}
