package magiclink

import (
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/services/accounts"
	jwtservice "github.com/tech-arch1tect/payslip-auth/services/jwt"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	links "github.com/tech-arch1tect/payslip-auth/services/magiclink"
	"go.uber.org/fx"
)

func ProvideHandler(cfg *config.Config, linkService *links.Service, accountService *accounts.Service, tokens *jwtservice.Service, logger *logging.Service) *Handler {
	return NewHandler(cfg, linkService, accountService, tokens, logger.Named("http.magiclink"))
}

var Module = fx.Options(
	fx.Provide(ProvideHandler),
)
