package server

import (
	"errors"
	"strconv"
	"strings"

	"quillpost/internal/models"
	"quillpost/internal/service"

	"github.com/gofiber/fiber/v2"
)

const (
	msgRegistered     = "Your account has been created successfully! Login to access your account."
	msgBadLogin       = "Unsuccessful login! Please check email and password."
	msgResetSent      = "An email has been sent to you with the instructions to reset your password."
	msgInvalidToken   = "That is an invalid or expired token"
	msgResetExpired   = "Reset session expired. Please try again."
	msgResetNoUser    = "User not found. Please try again."
	msgPasswordUpdate = "Your password has been updated! You are now able to log in"
)

func (s *Server) RegisterForm(c *fiber.Ctx) error {
	return s.render(c, "register", fiber.Map{"Title": "Register"})
}

func (s *Server) Register(c *fiber.Ctx) error {
	form := map[string]string{
		"username": strings.TrimSpace(c.FormValue("username")),
		"email":    strings.TrimSpace(c.FormValue("email")),
	}
	_, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Username: form["username"],
		Email:    form["email"],
		Password: c.FormValue("password"),
		Confirm:  c.FormValue("confirm_password"),
	})
	if errs, ok := formErrors(err); ok {
		return s.renderForm(c, "register", fiber.Map{"Title": "Register", "Form": form}, errs)
	}
	if err != nil {
		return err
	}

	if err := s.flash(c, flashSuccess, msgRegistered); err != nil {
		return err
	}
	return c.Redirect("/login", fiber.StatusFound)
}

func (s *Server) LoginForm(c *fiber.Ctx) error {
	return s.render(c, "login", fiber.Map{
		"Title": "Login",
		"Next":  safeNext(c.Query("next")),
	})
}

// Login signs the user in and follows a local ?next= target.
func (s *Server) Login(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	next := safeNext(c.Query("next"))

	user, err := s.userService.Authenticate(c.UserContext(), email, c.FormValue("password"))
	if errors.Is(err, service.ErrInvalidCredentials) {
		return s.render(c, "login", fiber.Map{
			"Title":   "Login",
			"Next":    next,
			"Form":    map[string]string{"email": email},
			"Flashes": []Flash{{Category: flashDanger, Message: msgBadLogin}},
		})
	}
	if err != nil {
		return err
	}

	// a fresh session id after login
	sess, err := s.sessions.Get(c)
	if err != nil {
		return err
	}
	if !sess.Fresh() {
		if err := sess.Regenerate(); err != nil {
			return err
		}
		if err := sess.Save(); err != nil {
			return err
		}
	}

	if err := s.setAuthCookie(c, user.ID, c.FormValue("remember") != ""); err != nil {
		return err
	}
	if next == "" {
		next = "/"
	}
	return c.Redirect(next, fiber.StatusFound)
}

// Logout clears the auth cookie and the server-side session.
func (s *Server) Logout(c *fiber.Ctx) error {
	s.clearAuthCookie(c)
	sess, err := s.sessions.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Destroy(); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusFound)
}

func (s *Server) ResetRequestForm(c *fiber.Ctx) error {
	return s.render(c, "reset_request", fiber.Map{"Title": "Reset Password"})
}

// ResetRequest mails a reset link to an existing account.
func (s *Server) ResetRequest(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	err := s.userService.RequestPasswordReset(c.UserContext(), email)
	if errs, ok := formErrors(err); ok {
		return s.renderForm(c, "reset_request", fiber.Map{
			"Title": "Reset Password",
			"Form":  map[string]string{"email": email},
		}, errs)
	}
	if err != nil {
		return err
	}

	if err := s.flash(c, flashInfo, msgResetSent); err != nil {
		return err
	}
	return c.Redirect("/login", fiber.StatusFound)
}

// ResetPasswordForm verifies the token and stages the user id in the session
// for the POST that follows.
func (s *Server) ResetPasswordForm(c *fiber.Ctx) error {
	token := c.Params("token")
	user, err := s.userService.VerifyResetToken(c.UserContext(), token)
	if models.IsNotFound(err) {
		if err := s.flash(c, flashWarning, msgInvalidToken); err != nil {
			return err
		}
		return c.Redirect("/reset_password", fiber.StatusFound)
	}
	if err != nil {
		return err
	}

	sess, err := s.sessions.Get(c)
	if err != nil {
		return err
	}
	sess.Set(resetUserKey, strconv.FormatUint(uint64(user.ID), 10))
	if err := sess.Save(); err != nil {
		return err
	}
	return s.render(c, "reset_password", fiber.Map{"Title": "Reset Password", "Token": token})
}

// ResetPassword sets the new password for the staged user.
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	sess, err := s.sessions.Get(c)
	if err != nil {
		return err
	}
	raw, _ := sess.Get(resetUserKey).(string)
	userID, perr := strconv.ParseUint(raw, 10, 64)
	if raw == "" || perr != nil {
		sess.Delete(resetUserKey)
		pushFlash(sess, flashWarning, msgResetExpired)
		if err := sess.Save(); err != nil {
			return err
		}
		return c.Redirect("/reset_password", fiber.StatusFound)
	}

	err = s.userService.ResetPassword(c.UserContext(), service.ResetPasswordInput{
		UserID:   uint(userID),
		Password: c.FormValue("password"),
		Confirm:  c.FormValue("confirm_password"),
	})
	if errs, ok := formErrors(err); ok {
		return s.renderForm(c, "reset_password", fiber.Map{
			"Title": "Reset Password",
			"Token": c.Params("token"),
		}, errs)
	}
	switch {
	case models.IsNotFound(err):
		sess.Delete(resetUserKey)
		pushFlash(sess, flashWarning, msgResetNoUser)
		if err := sess.Save(); err != nil {
			return err
		}
		return c.Redirect("/reset_password", fiber.StatusFound)
	case err != nil:
		return err
	}

	sess.Delete(resetUserKey)
	pushFlash(sess, flashSuccess, msgPasswordUpdate)
	if err := sess.Save(); err != nil {
		return err
	}
	return c.Redirect("/login", fiber.StatusFound)
}
