package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive/internal/events"
	"github.com/taskhive/taskhive/internal/handlers"
	"github.com/taskhive/taskhive/internal/httpserver"
	authmw "github.com/taskhive/taskhive/internal/middleware/auth"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repo"
	"github.com/taskhive/taskhive/internal/search"
	"github.com/taskhive/taskhive/internal/session"
)

type testEnv struct {
	T        *testing.T
	E        *echo.Echo
	Repo     *repo.GormRepo
	Sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.Task{}))

	store := repo.New(db)
	sessions := &session.Manager{
		Repo:          store,
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	}

	e := echo.New()
	httpserver.Register(e, &httpserver.Deps{
		DB:            db,
		AuthHandler:   &handlers.AuthHandler{Repo: store, Sessions: sessions, Producer: &events.Producer{}},
		TaskHandler:   &handlers.TaskHandler{Repo: store, Producer: &events.Producer{}, Indexer: &search.Indexer{}},
		SearchHandler: &handlers.SearchHandler{},
		AuthGate:      &authmw.Middleware{Sessions: sessions},
	})

	return &testEnv{T: t, E: e, Repo: store, Sessions: sessions}
}

func (env *testEnv) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	env.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(env.T, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) decode(rec *httptest.ResponseRecorder) map[string]any {
	env.T.Helper()

	var out map[string]any
	require.NoError(env.T, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// register signs up a fresh user and returns the session cookies the server
// installed, ready to attach to follow-up requests.
func (env *testEnv) register(email, password string) []*http.Cookie {
	env.T.Helper()

	rec := env.do(http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(env.T, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookies(rec)
}

func sessionCookies(rec *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.AccessCookie || cookie.Name == session.RefreshCookie {
			out = append(out, &http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}
	return out
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
