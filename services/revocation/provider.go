package revocation

import (
	"fmt"

	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/services/jwt"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideStore(cfg *config.Config, db *gorm.DB) (Store, error) {
	switch cfg.JWT.RevocationStore {
	case "memory":
		return NewMemoryStore(), nil
	case "database", "":
		if db == nil {
			return nil, fmt.Errorf("database revocation store requires a database")
		}
		return NewGormStore(db)
	default:
		return nil, fmt.Errorf("unsupported revocation store type: %s", cfg.JWT.RevocationStore)
	}
}

func ProvideRevocationService(store Store, logger *logging.Service) *Service {
	return NewService(store, logger.Named("revocation"))
}

func ProvideRevocationAsJWTInterface(svc *Service) jwt.RevocationService {
	return svc
}

var Module = fx.Options(
	fx.Provide(
		ProvideStore,
		ProvideRevocationService,
		ProvideRevocationAsJWTInterface,
	),
)
