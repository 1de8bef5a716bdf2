// Package middleware provides HTTP middleware: principal resolution, logging,
// metrics, tracing and rate limiting.
package middleware

import (
	"context"
	"net/url"

	"quillpost/internal/auth"
	"quillpost/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Locals keys holding the request principal.
const (
	LocalUserID      = "userID"
	LocalCurrentUser = "currentUser"
)

// PrincipalLookup loads the account behind a session token.
type PrincipalLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// LoadPrincipal resolves the auth cookie into the request principal. Requests
// without a valid cookie continue anonymously; a cookie for a deleted account
// is cleared.
func LoadPrincipal(tokens *auth.SessionTokens, users PrincipalLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(auth.SessionCookie)
		if raw == "" {
			return c.Next()
		}

		userID, err := tokens.Parse(raw)
		if err != nil {
			c.ClearCookie(auth.SessionCookie)
			return c.Next()
		}

		user, err := users.GetByID(c.UserContext(), userID)
		if err != nil {
			if !models.IsNotFound(err) {
				return err
			}
			c.ClearCookie(auth.SessionCookie)
			return c.Next()
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalCurrentUser, user)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, user.ID))
		return c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil for anonymous requests.
func CurrentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(LocalCurrentUser).(*models.User)
	return u
}

// CurrentUserID returns the authenticated user id.
func CurrentUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(LocalUserID).(uint)
	return id, ok
}

// RequireAuth runs onMissing for anonymous requests. When onMissing is nil the
// request is redirected to /login with a next parameter.
func RequireAuth(onMissing fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CurrentUserID(c); ok {
			return c.Next()
		}
		if onMissing != nil {
			return onMissing(c)
		}
		return c.Redirect(LoginRedirectURL(c), fiber.StatusFound)
	}
}

// LoginRedirectURL builds /login?next=<current path>.
func LoginRedirectURL(c *fiber.Ctx) string {
	return "/login?next=" + url.QueryEscape(c.OriginalURL())
}
