package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/clipsync/backend/internal/models"
	"github.com/clipsync/backend/internal/session"
	"github.com/clipsync/backend/pkg/utils"
)

const cookieName = "clipsync_session"

// EnsureSession guarantees every request carries a valid session cookie,
// minting an unauthenticated one when the browser shows up empty-handed.
// Authentication status is decided later by the passkey ceremony.
func EnsureSession(manager *session.Manager, ttl time.Duration, secureCookie bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var sess *models.Session

		if token := c.Cookies(cookieName); token != "" {
			found, err := manager.Lookup(token)
			if err == nil {
				sess = found
			} else if !errors.Is(err, session.ErrNotFound) {
				return utils.Error(c, fiber.StatusInternalServerError, "Session lookup failed")
			}
		}

		if sess == nil {
			token, created, err := manager.Create()
			if err != nil {
				return utils.Error(c, fiber.StatusInternalServerError, "Failed to create session")
			}
			sess = created
			c.Cookie(&fiber.Cookie{
				Name:     cookieName,
				Value:    token,
				Expires:  time.Now().Add(ttl),
				HTTPOnly: true,
				Secure:   secureCookie,
				SameSite: fiber.CookieSameSiteLaxMode,
				Path:     "/",
			})
		}

		c.Locals("session_id", sess.ID)
		c.Locals("authenticated", sess.Authenticated)
		return c.Next()
	}
}

// RequireAuth rejects requests whose session has not completed a passkey
// ceremony. Must run after EnsureSession.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authenticated, ok := c.Locals("authenticated").(bool)
		if !ok || !authenticated {
			return utils.Error(c, fiber.StatusUnauthorized, "Not authenticated")
		}
		return c.Next()
	}
}

// SessionID returns the current request's session id. Panics if EnsureSession
// did not run, which is a routing bug rather than a runtime condition.
func SessionID(c *fiber.Ctx) uuid.UUID {
	return c.Locals("session_id").(uuid.UUID)
}

// Authenticated reports whether the current session finished a ceremony.
func Authenticated(c *fiber.Ctx) bool {
	authenticated, _ := c.Locals("authenticated").(bool)
	return authenticated
}
