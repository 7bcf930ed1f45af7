package auth

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const principalKey = "userID"

func setPrincipal(c echo.Context, userID uuid.UUID) {
	c.Set(principalKey, userID)
}

// UserID returns the authenticated principal bound to the request by
// RequireLogin. The second return is false on routes that skipped the gate.
func UserID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(principalKey).(uuid.UUID)
	return id, ok
}
