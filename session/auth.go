package session

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	UserIDKey        = "_user_id"
	EmailKey         = "_email"
	AuthenticatedKey = "_authenticated"
)

func Login(c echo.Context, userID uint, email string) error {
	manager := GetManager(c)
	if manager == nil {
		return fmt.Errorf("session manager not available")
	}

	ctx := c.Request().Context()
	if err := manager.RenewToken(ctx); err != nil {
		return fmt.Errorf("failed to renew session token: %w", err)
	}

	manager.Put(ctx, UserIDKey, userID)
	manager.Put(ctx, EmailKey, email)
	manager.Put(ctx, AuthenticatedKey, true)
	return nil
}

func Logout(c echo.Context) error {
	manager := GetManager(c)
	if manager == nil {
		return nil
	}
	return manager.Destroy(c.Request().Context())
}

func GetUserID(c echo.Context) uint {
	manager := GetManager(c)
	if manager == nil {
		return 0
	}
	if id, ok := manager.Get(c.Request().Context(), UserIDKey).(uint); ok {
		return id
	}
	return 0
}

func GetEmail(c echo.Context) string {
	manager := GetManager(c)
	if manager == nil {
		return ""
	}
	return manager.GetString(c.Request().Context(), EmailKey)
}

func IsAuthenticated(c echo.Context) bool {
	manager := GetManager(c)
	if manager == nil {
		return false
	}
	return manager.GetBool(c.Request().Context(), AuthenticatedKey)
}

func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsAuthenticated(c) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			return next(c)
		}
	}
}
