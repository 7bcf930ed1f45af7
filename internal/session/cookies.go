package session

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	AccessCookie  = "auth-token"
	RefreshCookie = "refreshToken"
)

func (m *Manager) createCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		MaxAge:   int(time.Until(exp).Seconds()),
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) deleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) InstallCookies(c echo.Context, s *Session) {
	c.SetCookie(m.createCookie(RefreshCookie, s.RefreshToken, "/", s.RefreshExp))
	c.SetCookie(m.createCookie(AccessCookie, s.AccessToken, "/", s.AccessExp))
}

func (m *Manager) InstallAccessCookie(c echo.Context, token string, exp time.Time) {
	c.SetCookie(m.createCookie(AccessCookie, token, "/", exp))
}

func (m *Manager) ClearCookies(c echo.Context) {
	c.SetCookie(m.deleteCookie(RefreshCookie, "/"))
	c.SetCookie(m.deleteCookie(AccessCookie, "/"))
}
