package magiclink

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/payslip-auth/config"
	"github.com/tech-arch1tect/payslip-auth/middleware/jwt"
	"github.com/tech-arch1tect/payslip-auth/middleware/jwtshared"
	"github.com/tech-arch1tect/payslip-auth/services/accounts"
	jwtservice "github.com/tech-arch1tect/payslip-auth/services/jwt"
	"github.com/tech-arch1tect/payslip-auth/services/logging"
	links "github.com/tech-arch1tect/payslip-auth/services/magiclink"
	"github.com/tech-arch1tect/payslip-auth/session"
	"go.uber.org/zap"
)

const (
	msgInvalidLink   = "Invalid or expired magic link"
	msgUnknownEmail  = "No account is registered for this email address"
	msgNoLinkIssued  = "No magic link was issued for this email address"
	msgInvalidEmail  = "A valid email address is required"
	msgDeliveryError = "The login link could not be sent, please try again later"
	msgNoSessions    = "Browser sign-in is not available"
)

type RequestLinkRequest struct {
	Email string `json:"email" doc:"Address the login link is sent to" example:"jane.doe@example.com"`
}

type RequestLinkResponse struct {
	Message          string `json:"message"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

type VerifyLinkRequest struct {
	Token string `json:"token" doc:"Secret from the login link"`
	Email string `json:"email" doc:"Address the link was sent to" example:"jane.doe@example.com"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type" example:"Bearer"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AccountResponse struct {
	ID          uint       `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func newAccountResponse(account *accounts.Account) AccountResponse {
	return AccountResponse{
		ID:          account.ID,
		Email:       account.Email,
		Name:        account.Name,
		LastLoginAt: account.LastLoginAt,
		CreatedAt:   account.CreatedAt,
	}
}

type Handler struct {
	config   *config.Config
	links    *links.Service
	accounts *accounts.Service
	tokens   *jwtservice.Service
	logger   *logging.Service
}

func NewHandler(cfg *config.Config, linkService *links.Service, accountService *accounts.Service, tokens *jwtservice.Service, logger *logging.Service) *Handler {
	return &Handler{
		config:   cfg,
		links:    linkService,
		accounts: accountService,
		tokens:   tokens,
		logger:   logger,
	}
}

func (h *Handler) RequestLink(c echo.Context) error {
	var req RequestLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	_, err := h.links.Create(c.Request().Context(), links.CreateRequest{
		Email:     req.Email,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	switch {
	case err == nil:
	case errors.Is(err, links.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidEmail)
	case errors.Is(err, links.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, msgUnknownEmail)
	case errors.Is(err, links.ErrDeliveryFailure):
		return echo.NewHTTPError(http.StatusBadGateway, msgDeliveryError).SetInternal(err)
	default:
		h.logger.Error("magic link request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to process the request").SetInternal(err)
	}

	return c.JSON(http.StatusOK, RequestLinkResponse{
		Message:          "Check your email for a login link",
		ExpiresInMinutes: int(h.links.Expiry() / time.Minute),
	})
}

func (h *Handler) ValidateLink(c echo.Context) error {
	if session.GetManager(c) == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, msgNoSessions)
	}

	result, err := h.links.Validate(c.Request().Context(), c.QueryParam("token"), c.QueryParam("email"))
	if err != nil {
		return h.rejection(err, http.StatusBadRequest)
	}
	if result.Account == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Account could not be resolved")
	}

	if err := session.Login(c, result.Account.ID, result.Email); err != nil {
		h.logger.Error("failed to establish session", zap.Uint("account_id", result.Account.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to sign in").SetInternal(err)
	}

	return c.Redirect(http.StatusFound, h.config.MagicLink.SuccessRedirect)
}

func (h *Handler) VerifyLink(c echo.Context) error {
	var req VerifyLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	result, err := h.links.Validate(c.Request().Context(), req.Token, req.Email)
	if err != nil {
		return h.rejection(err, http.StatusUnauthorized)
	}
	if result.Account == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Account could not be resolved")
	}

	accessToken, expiresAt, err := h.tokens.GenerateToken(result.Account.ID, result.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to issue access token").SetInternal(err)
	}

	return c.JSON(http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   h.tokens.GetAccessExpirySeconds(),
		ExpiresAt:   expiresAt,
	})
}

func (h *Handler) rejection(err error, invalidStatus int) error {
	switch {
	case errors.Is(err, links.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidLink)
	case errors.Is(err, links.ErrInvalidOrExpiredToken):
		if reason, _ := links.RejectionReason(err); reason == links.ReasonNoRecord && h.config.MagicLink.RevealUnknown {
			return echo.NewHTTPError(http.StatusNotFound, msgNoLinkIssued)
		}
		return echo.NewHTTPError(invalidStatus, msgInvalidLink)
	case errors.Is(err, links.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, msgUnknownEmail)
	default:
		h.logger.Error("magic link validation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to validate the magic link").SetInternal(err)
	}
}

func (h *Handler) Me(c echo.Context) error {
	account, err := h.accounts.FindByID(c.Request().Context(), session.GetUserID(c))
	if errors.Is(err, accounts.ErrAccountNotFound) {
		_ = session.Logout(c)
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newAccountResponse(account))
}

func (h *Handler) APIMe(c echo.Context) error {
	account := jwtshared.GetCurrentAccount(c)
	if account == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	return c.JSON(http.StatusOK, newAccountResponse(account))
}

func (h *Handler) APILogout(c echo.Context) error {
	claims := jwt.GetClaims(c)
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}

	if err := h.tokens.RevokeToken(c.Request().Context(), claims); err != nil {
		if errors.Is(err, jwtservice.ErrNoRevocation) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "Token revocation is not available")
		}
		h.logger.Error("failed to revoke access token", zap.Uint("account_id", claims.UserID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to sign out").SetInternal(err)
	}

	return c.JSON(http.StatusOK, MessageResponse{Message: "Signed out"})
}

func (h *Handler) Logout(c echo.Context) error {
	if err := session.Logout(c); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Unable to sign out").SetInternal(err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "Signed out"})
}
