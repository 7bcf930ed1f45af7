// Package session is the single place that knows how both signing secrets and
// the persisted refresh-token records are used together.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/repo"
	"github.com/taskhive/taskhive/internal/tokens"
)

var ErrInvalidRefresh = errors.New("invalid refresh token")

type Manager struct {
	Repo          *repo.GormRepo
	JWTSecret     []byte
	RefreshSecret []byte
	CookieSecure  bool
}

type Session struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

// Issue signs both tokens and persists the refresh record. The record is
// written before anything is returned: a signed token that was never stored
// can never pass FindValidRefreshToken, so a storage failure leaves no live
// session behind.
func (m *Manager) Issue(ctx context.Context, userID uuid.UUID) (*Session, error) {
	accessToken, accessExp, err := tokens.SignAccessToken(userID, m.JWTSecret)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshExp, err := tokens.SignRefreshToken(userID, m.RefreshSecret)
	if err != nil {
		return nil, err
	}

	if err := m.Repo.StoreRefreshToken(ctx, userID, Sha256Hex(refreshToken), refreshExp); err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Refresh turns a raw refresh token into a fresh access token. The token must
// verify cryptographically AND match a non-expired stored record; both checks
// are independent and both must pass. The refresh token itself is not rotated.
func (m *Manager) Refresh(ctx context.Context, rawRefresh string) (string, time.Time, uuid.UUID, error) {
	claims, err := tokens.RefreshClaimsFromToken(rawRefresh, m.RefreshSecret)
	if err != nil {
		return "", time.Time{}, uuid.Nil, ErrInvalidRefresh
	}

	record, err := m.Repo.FindValidRefreshToken(ctx, Sha256Hex(rawRefresh))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", time.Time{}, uuid.Nil, ErrInvalidRefresh
		}
		return "", time.Time{}, uuid.Nil, err
	}

	userID, err := claims.UserID()
	if err != nil || userID != record.UserID {
		return "", time.Time{}, uuid.Nil, ErrInvalidRefresh
	}

	accessToken, accessExp, err := tokens.SignAccessToken(userID, m.JWTSecret)
	if err != nil {
		return "", time.Time{}, uuid.Nil, err
	}
	return accessToken, accessExp, userID, nil
}

// End deletes the persisted record. Ending an already-dead session is a no-op.
func (m *Manager) End(ctx context.Context, rawRefresh string) error {
	return m.Repo.DeleteRefreshToken(ctx, Sha256Hex(rawRefresh))
}

func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
