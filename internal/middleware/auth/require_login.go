package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/taskhive/taskhive/internal/logging"
	"github.com/taskhive/taskhive/internal/session"
	"github.com/taskhive/taskhive/internal/tokens"
)

type Middleware struct {
	Sessions *session.Manager
}

// RequireLogin gates a route on a verified access token. When the token fails
// verification it drives one silent refresh attempt from the refresh cookie;
// every failure path returns 401 without touching any cookie, so a failed
// attempt leaves the client's session state exactly as it arrived.
func (m *Middleware) RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := tokenFromRequest(c)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := tokens.AccessClaimsFromToken(raw, m.Sessions.JWTSecret)
		if err == nil {
			userID, uerr := claims.UserID()
			if uerr != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			setPrincipal(c, userID)
			return next(c)
		}

		rfCookie, cerr := c.Cookie(session.RefreshCookie)
		if cerr != nil || rfCookie.Value == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
		}

		ctx := c.Request().Context()
		newAccess, accessExp, userID, rerr := m.Sessions.Refresh(ctx, rfCookie.Value)
		if rerr != nil {
			logging.FromContext(ctx).Warn("silent_refresh_failed", "error", rerr)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
		}

		// Verify the freshly minted token before installing it; if this ever
		// fails the request stays unauthenticated and no cookie changes.
		if _, verr := tokens.AccessClaimsFromToken(newAccess, m.Sessions.JWTSecret); verr != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "new access token invalid")
		}

		m.Sessions.InstallAccessCookie(c, newAccess, accessExp)
		setPrincipal(c, userID)
		return next(c)
	}
}

func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(session.AccessCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
