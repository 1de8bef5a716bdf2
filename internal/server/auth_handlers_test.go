package server

import (
	"net/url"
	"regexp"
	"testing"
	"time"

	"quillpost/internal/config"
	"quillpost/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resetPathRe = regexp.MustCompile(`/reset_password/(\S+)`)

func TestRegisterThenLogin(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)

	b.register("alice", "alice@example.com", "password123")
	page := readBody(t, b.get("/login"))
	assert.Contains(t, page, msgRegistered)

	// flashes are shown once
	assert.NotContains(t, readBody(t, b.get("/login")), msgRegistered)

	b.login("alice@example.com", "password123")
	assert.Contains(t, readBody(t, b.get("/")), "Logout")

	// signed-in users are sent home from guest pages
	assertRedirect(t, b.get("/register"), "/")
	assertRedirect(t, b.get("/login"), "/")
	assertRedirect(t, b.get("/reset_password"), "/")
}

func TestRegisterRejectsTakenUsernameAndEmail(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)
	b.register("alice", "alice@example.com", "password123")

	resp := b.post("/register", url.Values{
		"username":         {"alice"},
		"email":            {"other@example.com"},
		"password":         {"password123"},
		"confirm_password": {"password123"},
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "This username is taken. Please choose another one!")

	resp = b.post("/register", url.Values{
		"username":         {"alice2"},
		"email":            {"alice@example.com"},
		"password":         {"password123"},
		"confirm_password": {"password123"},
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "This email already has an account. Please log in instead.")

	var count int64
	require.NoError(t, h.db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// the original account still works
	b.login("alice@example.com", "password123")
}

func TestLoginFailureShowsFlash(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)
	b.register("alice", "alice@example.com", "password123")

	for _, form := range []url.Values{
		{"email": {"alice@example.com"}, "password": {"wrong-password"}},
		{"email": {"nobody@example.com"}, "password": {"password123"}},
	} {
		resp := b.post("/login", form)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), msgBadLogin)
		assert.False(t, b.signedIn())
	}
}

func TestProtectedRouteRedirectsToLoginWithNext(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)
	b.register("alice", "alice@example.com", "password123")

	resp := b.get("/new/post")
	assertRedirect(t, resp, "/login?next=%2Fnew%2Fpost")

	page := readBody(t, b.get("/login?next=%2Fnew%2Fpost"))
	assert.Contains(t, page, msgLoginRequired)

	resp = b.post("/login?next=%2Fnew%2Fpost", url.Values{
		"email":    {"alice@example.com"},
		"password": {"password123"},
	})
	assertRedirect(t, resp, "/new/post")
	assert.Equal(t, fiber.StatusOK, b.get("/new/post").StatusCode)
}

func TestLoginIgnoresExternalNext(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)
	b.register("alice", "alice@example.com", "password123")

	resp := b.post("/login?next=%2F%2Fevil.example.com", url.Values{
		"email":    {"alice@example.com"},
		"password": {"password123"},
	})
	assertRedirect(t, resp, "/")
}

func TestRememberMeSetsPersistentCookie(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)
	b.register("alice", "alice@example.com", "password123")

	resp := b.post("/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"password123"},
		"remember": {"y"},
	})
	assertRedirect(t, resp, "/")
	ck := b.cookies["quillpost_auth"]
	require.NotNil(t, ck)
	assert.Equal(t, int(h.cfg.RememberTTL.Seconds()), ck.MaxAge)
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t, nil)
	b, _ := h.signUp(t, "alice")

	assertRedirect(t, b.get("/logout"), "/")
	assert.False(t, b.signedIn())
	assertRedirect(t, b.get("/account"), "/login?next=%2Faccount")
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)
	b.register("alice", "alice@example.com", "password123")

	resp := b.post("/reset_password", url.Values{"email": {"nobody@example.com"}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "There is no account with that email")

	resp = b.post("/reset_password", url.Values{"email": {"alice@example.com"}})
	assertRedirect(t, resp, "/login")
	assert.Contains(t, readBody(t, b.get("/login")), msgResetSent)

	msg, ok := h.mail.Last()
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Password Reset Request", msg.Subject)
	m := resetPathRe.FindStringSubmatch(msg.Body)
	require.Len(t, m, 2)
	resetPath := "/reset_password/" + m[1]

	resp = b.get(resetPath)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = b.post(resetPath, url.Values{"password": {"newpass456"}, "confirm_password": {"mismatch"}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()

	resp = b.post(resetPath, url.Values{"password": {"newpass456"}, "confirm_password": {"newpass456"}})
	assertRedirect(t, resp, "/login")
	assert.Contains(t, readBody(t, b.get("/login")), msgPasswordUpdate)

	// the staged id is single use
	resp = b.post(resetPath, url.Values{"password": {"again789"}, "confirm_password": {"again789"}})
	assertRedirect(t, resp, "/reset_password")

	b.login("alice@example.com", "newpass456")
}

func TestResetTokenFailures(t *testing.T) {
	h := newHarness(t, nil)
	b := h.browser(t)
	b.register("alice", "alice@example.com", "password123")

	assertRedirect(t, b.get("/reset_password/not-a-token"), "/reset_password")
	assert.Contains(t, readBody(t, b.get("/reset_password")), msgInvalidToken)

	// POST without a prior GET has nothing staged
	resp := b.post("/reset_password/whatever", url.Values{"password": {"newpass456"}, "confirm_password": {"newpass456"}})
	assertRedirect(t, resp, "/reset_password")
	assert.Contains(t, readBody(t, b.get("/reset_password")), msgResetExpired)

	// expired tokens
	resp = b.post("/reset_password", url.Values{"email": {"alice@example.com"}})
	assertRedirect(t, resp, "/login")
	msg, ok := h.mail.Last()
	require.True(t, ok)
	m := resetPathRe.FindStringSubmatch(msg.Body)
	require.Len(t, m, 2)

	h.clock.Advance(h.cfg.ResetTokenTTL + time.Second)
	assertRedirect(t, b.get("/reset_password/"+m[1]), "/reset_password")
}

func TestSessionsStoredInRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	h := newHarness(t, rdb)
	b := h.browser(t)

	b.register("alice", "alice@example.com", "password123")
	require.NotEmpty(t, b.cookies["quillpost_session"])
	assert.True(t, mr.Exists("session:"+b.cookies["quillpost_session"].Value))
	assert.Contains(t, readBody(t, b.get("/login")), msgRegistered)
}

func TestLoginRateLimitFollowsConfig(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	h := newHarness(t, nil, func(c *config.Config) { c.RateLimit = config.RateLimitOn })
	b := h.browser(t)
	form := url.Values{"email": {"nobody@example.com"}, "password": {"password123"}}
	for i := 0; i < 10; i++ {
		resp := b.post("/login", form)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "attempt %d", i+1)
		_ = resp.Body.Close()
	}
	resp := b.post("/login", form)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	_ = resp.Body.Close()

	open := newHarness(t, nil)
	ob := open.browser(t)
	for i := 0; i < 12; i++ {
		resp := ob.post("/login", form)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "attempt %d", i+1)
		_ = resp.Body.Close()
	}
}
