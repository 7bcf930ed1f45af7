package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repo"
	"github.com/taskhive/taskhive/internal/session"
	"github.com/taskhive/taskhive/internal/tokens"
)

type testEnv struct {
	E        *echo.Echo
	Sessions *session.Manager
	SeenID   *uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.Task{}))

	sessions := &session.Manager{
		Repo:          repo.New(db),
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	}

	env := &testEnv{
		E:        echo.New(),
		Sessions: sessions,
		SeenID:   new(uuid.UUID),
	}

	mw := &Middleware{Sessions: sessions}
	env.E.GET("/protected", func(c echo.Context) error {
		id, ok := UserID(c)
		require.True(t, ok)
		*env.SeenID = id
		return c.NoContent(http.StatusOK)
	}, mw.RequireLogin)

	return env
}

func (env *testEnv) request(cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func expiredAccessToken(t *testing.T, userID uuid.UUID, secret []byte) string {
	t.Helper()

	claims := tokens.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-30 * time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestRequireLogin_ValidAccessCookie(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	userID := uuid.New()
	sess, err := env.Sessions.Issue(context.Background(), userID)
	require.NoError(t, err)

	rec := env.request(&http.Cookie{Name: session.AccessCookie, Value: sess.AccessToken})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, *env.SeenID)
}

func TestRequireLogin_BearerHeaderFallback(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	userID := uuid.New()
	sess, err := env.Sessions.Issue(context.Background(), userID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+sess.AccessToken)
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, *env.SeenID)
}

func TestRequireLogin_NoToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.request()
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// An expired access cookie plus a live, stored refresh cookie authenticates
// in a single request and installs a fresh access cookie.
func TestRequireLogin_SilentRefresh(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	userID := uuid.New()
	sess, err := env.Sessions.Issue(context.Background(), userID)
	require.NoError(t, err)

	rec := env.request(
		&http.Cookie{Name: session.AccessCookie, Value: expiredAccessToken(t, userID, env.Sessions.JWTSecret)},
		&http.Cookie{Name: session.RefreshCookie, Value: sess.RefreshToken},
	)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, *env.SeenID)

	var newAccess *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.AccessCookie {
			newAccess = cookie
		}
	}
	require.NotNil(t, newAccess, "expected a fresh access cookie")
	assert.NotEqual(t, sess.AccessToken, newAccess.Value)

	claims, err := tokens.AccessClaimsFromToken(newAccess.Value, env.Sessions.JWTSecret)
	require.NoError(t, err)
	parsed, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestRequireLogin_GarbageAccessWithValidRefresh(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	userID := uuid.New()
	sess, err := env.Sessions.Issue(context.Background(), userID)
	require.NoError(t, err)

	rec := env.request(
		&http.Cookie{Name: session.AccessCookie, Value: "garbage"},
		&http.Cookie{Name: session.RefreshCookie, Value: sess.RefreshToken},
	)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireLogin_ExpiredAccessNoRefresh(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	userID := uuid.New()

	rec := env.request(&http.Cookie{Name: session.AccessCookie, Value: expiredAccessToken(t, userID, env.Sessions.JWTSecret)})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// A refresh token whose record was deleted by logout stays dead even though
// its signature has not expired, and the failed attempt mutates no cookies.
func TestRequireLogin_RevokedRefreshFailsClosed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	userID := uuid.New()
	sess, err := env.Sessions.Issue(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, env.Sessions.End(context.Background(), sess.RefreshToken))

	rec := env.request(
		&http.Cookie{Name: session.AccessCookie, Value: expiredAccessToken(t, userID, env.Sessions.JWTSecret)},
		&http.Cookie{Name: session.RefreshCookie, Value: sess.RefreshToken},
	)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "failed refresh must not touch cookies")
}

func TestRequireLogin_BothCookiesInvalid(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.request(
		&http.Cookie{Name: session.AccessCookie, Value: "bad"},
		&http.Cookie{Name: session.RefreshCookie, Value: "worse"},
	)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}
