package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quillpost/internal/auth"
	"quillpost/internal/middleware"
	"quillpost/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

const (
	csrfFormField  = "_csrf"
	csrfContextKey = "csrf"
	flashesKey     = "_flashes"
	resetUserKey   = "reset_user_id"
)

// Flash categories, used as CSS class suffixes.
const (
	flashSuccess = "success"
	flashDanger  = "danger"
	flashInfo    = "info"
	flashWarning = "warning"
)

const msgLoginRequired = "Please log in to access this page."

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// pushFlash appends a message to the session. The caller saves the session.
func pushFlash(sess *session.Session, category, message string) {
	var flashes []Flash
	if raw, ok := sess.Get(flashesKey).(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &flashes)
	}
	flashes = append(flashes, Flash{Category: category, Message: message})
	encoded, err := json.Marshal(flashes)
	if err != nil {
		return
	}
	sess.Set(flashesKey, string(encoded))
}

// flash stores a message for the next rendered page.
func (s *Server) flash(c *fiber.Ctx, category, message string) error {
	sess, err := s.sessions.Get(c)
	if err != nil {
		return err
	}
	pushFlash(sess, category, message)
	return sess.Save()
}

// popFlashes returns and clears the pending messages. Session storage errors
// only cost the messages.
func (s *Server) popFlashes(c *fiber.Ctx) []Flash {
	sess, err := s.sessions.Get(c)
	if err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "session unavailable", slog.Any("error", err))
		return nil
	}
	raw, _ := sess.Get(flashesKey).(string)
	if raw == "" {
		return nil
	}
	sess.Delete(flashesKey)
	if err := sess.Save(); err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "failed to clear flashes", slog.Any("error", err))
	}
	var flashes []Flash
	if err := json.Unmarshal([]byte(raw), &flashes); err != nil {
		return nil
	}
	return flashes
}

// render executes a view inside the main layout. Pending flashes are shown
// before any passed in data["Flashes"].
func (s *Server) render(c *fiber.Ctx, view string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	flashes := s.popFlashes(c)
	if extra, ok := data["Flashes"].([]Flash); ok {
		flashes = append(flashes, extra...)
	}
	data["Flashes"] = flashes
	data["CurrentUser"] = middleware.CurrentUser(c)
	token, _ := c.Locals(csrfContextKey).(string)
	data["CSRF"] = token
	for _, key := range []string{"Title"} {
		if _, ok := data[key]; !ok {
			data[key] = ""
		}
	}
	if _, ok := data["Errors"]; !ok {
		data["Errors"] = map[string]string{}
	}
	if _, ok := data["Form"]; !ok {
		data["Form"] = map[string]string{}
	}
	return c.Render(view, data)
}

// renderForm re-renders a form with field errors and 422.
func (s *Server) renderForm(c *fiber.Ctx, view string, data fiber.Map, errs map[string]string) error {
	data["Errors"] = errs
	c.Status(fiber.StatusUnprocessableEntity)
	return s.render(c, view, data)
}

// formErrors turns a validation error into per-field messages. Errors that
// are not validation errors return ok == false.
func formErrors(err error) (map[string]string, bool) {
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != models.CodeValidation {
		return nil, false
	}
	field := appErr.Field
	if field == "" {
		field = "form"
	}
	return map[string]string{field: appErr.Message}, true
}

// parseID reads a positive numeric route parameter. Anything else is a 404,
// matching how unknown routes look.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, fiber.ErrNotFound
	}
	return uint(id), nil
}

func pageParam(c *fiber.Ctx) int {
	return c.QueryInt("page", 1)
}

// safeNext accepts only local absolute paths as a post-login target.
func safeNext(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return ""
	}
	return raw
}

// guestOnly sends signed-in users home.
func (s *Server) guestOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if middleware.CurrentUser(c) != nil {
			return c.Redirect("/", fiber.StatusFound)
		}
		return c.Next()
	}
}

// loginRequired redirects anonymous requests to the login page.
func (s *Server) loginRequired() fiber.Handler {
	return middleware.RequireAuth(func(c *fiber.Ctx) error {
		if err := s.flash(c, flashInfo, msgLoginRequired); err != nil {
			return err
		}
		return c.Redirect(middleware.LoginRedirectURL(c), fiber.StatusFound)
	})
}

// setAuthCookie signs the user in. Without remember the cookie lives for the
// browser session only.
func (s *Server) setAuthCookie(c *fiber.Ctx, userID uint, remember bool) error {
	ttl := s.config.SessionTTL
	if remember {
		ttl = s.config.RememberTTL
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := s.tokens.Issue(userID, ttl)
	if err != nil {
		return err
	}
	cookie := &fiber.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if remember {
		cookie.MaxAge = int(ttl.Seconds())
	} else {
		cookie.SessionOnly = true
	}
	c.Cookie(cookie)
	return nil
}

func (s *Server) clearAuthCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
