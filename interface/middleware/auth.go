package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kavos113/dynctf/domain"
)

// UserHeader carries the authenticated user id, set by the auth proxy in
// front of this service. Requests reaching us without it are unauthenticated.
const UserHeader = "X-User-ID"

const userContextKey = "auth.user"

// RequireUser resolves the caller from the auth header and stores the user in
// the request context. Handlers behind it can rely on UserFrom returning a
// non-nil user.
func RequireUser(userRepo domain.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(UserHeader)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid user id")
			}

			user, err := userRepo.FindByID(c.Request().Context(), userID)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve user")
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// UserFrom returns the authenticated user stored by RequireUser, or nil.
func UserFrom(c echo.Context) *domain.User {
	user, _ := c.Get(userContextKey).(*domain.User)
	return user
}
