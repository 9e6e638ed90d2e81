package jwtshared

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/payslip-auth/middleware/jwt"
	"github.com/tech-arch1tect/payslip-auth/services/accounts"
)

const currentAccountKey = "currentAccount"

type AccountLoader interface {
	FindByID(ctx context.Context, id uint) (*accounts.Account, error)
}

// LoadAccount runs after jwt.RequireJWT.
func LoadAccount(loader AccountLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := jwt.GetUserID(c)
			if userID == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}

			account, err := loader.FindByID(c.Request().Context(), userID)
			if errors.Is(err, accounts.ErrAccountNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
			}
			if err != nil {
				return err
			}
			if !account.Active {
				return echo.NewHTTPError(http.StatusForbidden, "Account is disabled")
			}

			c.Set(currentAccountKey, account)
			return next(c)
		}
	}
}

func GetCurrentAccount(c echo.Context) *accounts.Account {
	if account, ok := c.Get(currentAccountKey).(*accounts.Account); ok {
		return account
	}
	return nil
}
