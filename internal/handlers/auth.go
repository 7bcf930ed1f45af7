package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskhive/taskhive/internal/events"
	"github.com/taskhive/taskhive/internal/hash"
	"github.com/taskhive/taskhive/internal/logging"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repo"
	"github.com/taskhive/taskhive/internal/session"
	"github.com/taskhive/taskhive/internal/tokens"
)

type AuthHandler struct {
	Repo     *repo.GormRepo
	Sessions *session.Manager
	Producer *events.Producer
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func userResponse(u *models.User) echo.Map {
	return echo.Map{
		"user": echo.Map{
			"id":    u.ID,
			"email": u.Email,
			"name":  u.Name,
		},
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		l.Warn("register_failed", "status", 400, "reason", "missing_fields")
		return echo.NewHTTPError(http.StatusBadRequest, "Email and password are required")
	}

	if _, err := h.Repo.FindUserByEmail(ctx, req.Email); err == nil {
		l.Warn("register_failed", "status", 400, "reason", "user_exists")
		return echo.NewHTTPError(http.StatusBadRequest, "User already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: pwHash,
		Name:         req.Name,
	}
	if err := h.Repo.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrUserExists) {
			l.Warn("register_failed", "status", 400, "reason", "user_exists")
			return echo.NewHTTPError(http.StatusBadRequest, "User already exists")
		}
		l.Error("register_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	sess, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot issue session", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	h.Sessions.InstallCookies(c, sess)

	h.publish(c, events.UserEvents, user.ID.String(), echo.Map{
		"type":   "user_registered",
		"userId": user.ID,
		"email":  user.Email,
	})

	l.Info("register_success", "status", 200, "user_id", user.ID)
	return c.JSON(http.StatusOK, userResponse(&user))
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		l.Warn("login_failed", "status", 400, "reason", "missing_fields")
		return echo.NewHTTPError(http.StatusBadRequest, "Email and password are required")
	}

	// Unknown email and wrong password collapse into one outcome so the
	// endpoint never reveals whether an address is registered.
	user, err := h.Repo.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "invalid_credentials")
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
		}
		l.Error("login_failed", "status", 500, "reason", "db_error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid_credentials")
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	sess, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot issue session", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
	h.Sessions.InstallCookies(c, sess)

	h.publish(c, events.UserEvents, user.ID.String(), echo.Map{
		"type":   "user_logged_in",
		"userId": user.ID,
		"email":  user.Email,
	})

	l.Info("login_success", "status", 200, "user_id", user.ID)
	return c.JSON(http.StatusOK, userResponse(user))
}

// LogOut succeeds unconditionally: the record deletion is a no-op for an
// absent or unknown token and both cookies are always cleared.
func (h *AuthHandler) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if cookie, err := c.Cookie(session.RefreshCookie); err == nil && cookie.Value != "" {
		if err := h.Sessions.End(ctx, cookie.Value); err != nil {
			l.Error("logout_cleanup_failed", "error", err)
		}
		if claims, err := tokens.RefreshClaimsFromToken(cookie.Value, h.Sessions.RefreshSecret); err == nil {
			h.publish(c, events.UserEvents, claims.Subject, echo.Map{
				"type":   "user_logged_out",
				"userId": claims.Subject,
			})
		}
	}

	h.Sessions.ClearCookies(c)
	l.Info("logout_success", "status", 200)
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// Refresh is the explicit client-invoked variant of the middleware's silent
// refresh. It never consults the access cookie; it exists precisely to
// recover from access-token expiry.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	cookie, err := c.Cookie(session.RefreshCookie)
	if err != nil || cookie.Value == "" {
		l.Warn("refresh_failed", "status", 401, "reason", "missing_cookie")
		return echo.NewHTTPError(http.StatusUnauthorized, "Refresh token missing")
	}

	accessToken, accessExp, _, err := h.Sessions.Refresh(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefresh) {
			l.Warn("refresh_failed", "status", 401, "reason", "invalid_refresh")
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	h.Sessions.InstallAccessCookie(c, accessToken, accessExp)
	l.Info("refresh_success", "status", 200)
	return c.JSON(http.StatusOK, echo.Map{"message": "Token refreshed successfully"})
}

func (h *AuthHandler) publish(c echo.Context, topic, key string, event any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("event_publish_failed", "topic", topic, "error", err)
	}
}
