package session

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repo"
	"github.com/taskhive/taskhive/internal/tokens"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.Task{}))

	return &Manager{
		Repo:          repo.New(db),
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	}
}

func TestIssue_PersistsHashedRecord(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	userID := uuid.New()

	sess, err := m.Issue(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, sess.AccessToken)
	require.NotEmpty(t, sess.RefreshToken)

	var records []models.RefreshToken
	require.NoError(t, m.Repo.DB.Find(&records).Error)
	require.Len(t, records, 1)

	assert.Equal(t, userID, records[0].UserID)
	assert.Equal(t, Sha256Hex(sess.RefreshToken), records[0].Token)
	assert.NotEqual(t, sess.RefreshToken, records[0].Token)
	assert.WithinDuration(t, time.Now().Add(tokens.RefreshTTL), records[0].ExpiresAt, 2*time.Second)
	assert.WithinDuration(t, sess.RefreshExp, records[0].ExpiresAt, time.Second)
}

func TestRefresh_MintsAccessForTokenOwner(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	userID := uuid.New()

	sess, err := m.Issue(context.Background(), userID)
	require.NoError(t, err)

	access, exp, gotID, err := m.Refresh(context.Background(), sess.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.WithinDuration(t, time.Now().Add(tokens.AccessTTL), exp, time.Second)

	claims, err := tokens.AccessClaimsFromToken(access, m.JWTSecret)
	require.NoError(t, err)
	parsed, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

// Renewal does not rotate: the refresh token stays valid and no extra record
// appears.
func TestRefresh_DoesNotRotate(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	sess, err := m.Issue(context.Background(), uuid.New())
	require.NoError(t, err)

	_, _, _, err = m.Refresh(context.Background(), sess.RefreshToken)
	require.NoError(t, err)
	_, _, _, err = m.Refresh(context.Background(), sess.RefreshToken)
	require.NoError(t, err)

	var count int64
	require.NoError(t, m.Repo.DB.Model(&models.RefreshToken{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRefresh_FailsAfterEnd(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	sess, err := m.Issue(context.Background(), uuid.New())
	require.NoError(t, err)

	require.NoError(t, m.End(context.Background(), sess.RefreshToken))

	_, _, _, err = m.Refresh(context.Background(), sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

// The signed expiry and the stored expiry are independent checks; a
// cryptographically live token with a stale row must fail.
func TestRefresh_FailsWhenRecordExpired(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	sess, err := m.Issue(context.Background(), uuid.New())
	require.NoError(t, err)

	err = m.Repo.DB.Model(&models.RefreshToken{}).
		Where("token = ?", Sha256Hex(sess.RefreshToken)).
		Update("expires_at", time.Now().Add(-time.Minute)).Error
	require.NoError(t, err)

	_, _, _, err = m.Refresh(context.Background(), sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefresh_RejectsGarbageToken(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	_, _, _, err := m.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

// An access token presented as a refresh token is signed with the wrong
// secret and must be rejected before any DB lookup.
func TestRefresh_RejectsAccessToken(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	sess, err := m.Issue(context.Background(), uuid.New())
	require.NoError(t, err)

	_, _, _, err = m.Refresh(context.Background(), sess.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestEnd_Idempotent(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	sess, err := m.Issue(context.Background(), uuid.New())
	require.NoError(t, err)

	require.NoError(t, m.End(context.Background(), sess.RefreshToken))
	require.NoError(t, m.End(context.Background(), sess.RefreshToken))
	require.NoError(t, m.End(context.Background(), "never-issued"))
}
