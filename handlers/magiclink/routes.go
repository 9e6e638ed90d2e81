package magiclink

import (
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/middleware/jwt"
	"github.com/tech-arch1tect/payslip-auth/middleware/jwtshared"
	"github.com/tech-arch1tect/payslip-auth/middleware/ratelimit"
	"github.com/tech-arch1tect/payslip-auth/openapi"
	links "github.com/tech-arch1tect/payslip-auth/services/magiclink"
	"github.com/tech-arch1tect/payslip-auth/session"
)

const (
	RequestPath = "/auth/magic-link/request"
	VerifyPath  = "/api/auth/magic-link/verify"
)

type RouteOptions struct {
	Sessions *session.Manager
	Limiter  ratelimit.Store
	Docs     *openapi.OpenAPI
}

func (h *Handler) RegisterRoutes(e *echo.Echo, opts RouteOptions) {
	requestLimit := ratelimit.FromConfig(&h.config.RateLimit, opts.Limiter, "magic_link_request", h.logger)

	validateCfg := h.config.RateLimit
	validateCfg.CountMode = config.CountFailures
	validateLimit := ratelimit.FromConfig(&validateCfg, opts.Limiter, "magic_link_validate", h.logger)

	e.POST(RequestPath, h.RequestLink, requestLimit)

	sessions := session.Middleware(opts.Sessions)
	e.GET(links.ValidatePath, h.ValidateLink, sessions, validateLimit)
	e.GET("/auth/me", h.Me, sessions, session.RequireAuth())
	e.POST("/auth/logout", h.Logout, sessions)

	if h.tokensEnabled() {
		api := e.Group("/api/auth")
		api.POST("/magic-link/verify", h.VerifyLink, validateLimit)
		api.GET("/me", h.APIMe, jwt.RequireJWT(h.tokens), jwtshared.LoadAccount(h.accounts))
		api.POST("/logout", h.APILogout, jwt.RequireJWT(h.tokens))
	}

	if opts.Docs != nil {
		h.document(opts.Docs)
	}
}

func (h *Handler) tokensEnabled() bool {
	return h.tokens != nil && h.tokens.Enabled()
}
