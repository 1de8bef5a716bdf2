package server

import (
	"io"
	"mime/multipart"
	"net/url"

	"quillpost/internal/middleware"
	"quillpost/internal/service"

	"github.com/gofiber/fiber/v2"
)

const (
	msgAccountUpdated = "Your account has been updated successfully!"
	msgAccountDeleted = "Your account has been deleted successfully!"
)

func (s *Server) AccountForm(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	return s.render(c, "account", fiber.Map{
		"Title": "Your Account",
		"Form":  map[string]string{"username": user.Username, "email": user.Email},
	})
}

// UpdateAccount changes username, email and, when a file is attached, the
// profile picture.
func (s *Server) UpdateAccount(c *fiber.Ctx) error {
	userID, _ := middleware.CurrentUserID(c)
	form := map[string]string{
		"username": c.FormValue("username"),
		"email":    c.FormValue("email"),
	}
	in := service.UpdateAccountInput{
		UserID:   userID,
		Username: form["username"],
		Email:    form["email"],
	}

	if fh, err := c.FormFile("picture"); err == nil && fh.Filename != "" {
		upload, err := readUpload(fh)
		if err != nil {
			return err
		}
		in.Picture = upload
	}

	_, err := s.userService.UpdateAccount(c.UserContext(), in)
	if errs, ok := formErrors(err); ok {
		return s.renderForm(c, "account", fiber.Map{"Title": "Your Account", "Form": form}, errs)
	}
	if err != nil {
		return err
	}

	if err := s.flash(c, flashSuccess, msgAccountUpdated); err != nil {
		return err
	}
	return c.Redirect("/account", fiber.StatusFound)
}

func readUpload(fh *multipart.FileHeader) (*service.PictureUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &service.PictureUpload{Filename: fh.Filename, Content: content}, nil
}

// UserPosts lists one author's published posts.
func (s *Server) UserPosts(c *fiber.Ctx) error {
	username := c.Params("username")
	if decoded, err := url.PathUnescape(username); err == nil {
		username = decoded
	}
	author, posts, err := s.postService.ListByAuthor(c.UserContext(), username, pageParam(c))
	if err != nil {
		return err
	}
	return s.render(c, "user_posts", fiber.Map{
		"Title":    author.Username,
		"Author":   author,
		"Posts":    posts,
		"PageBase": "/user/" + url.PathEscape(author.Username) + "?page=",
	})
}

// accountTarget loads the account addressed by :id and checks it belongs to
// the requester: 404 when it does not exist, 403 when it is someone else's.
func (s *Server) accountTarget(c *fiber.Ctx) (uint, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return 0, err
	}
	if _, err := s.userService.GetByID(c.UserContext(), id); err != nil {
		return 0, err
	}
	if uid, _ := middleware.CurrentUserID(c); uid != id {
		return 0, fiber.ErrForbidden
	}
	return id, nil
}

func (s *Server) DeleteAccountConfirm(c *fiber.Ctx) error {
	id, err := s.accountTarget(c)
	if err != nil {
		return err
	}
	return s.render(c, "confirm_delete", fiber.Map{
		"Title":   "Delete Account",
		"Heading": "Delete Account?",
		"Prompt":  "Your account and all of your posts will be removed. This cannot be undone.",
		"Action":  "/user/" + itoa(id) + "/delete",
		"Cancel":  "/account",
	})
}

// DeleteAccount signs the user out and removes the account with its posts.
func (s *Server) DeleteAccount(c *fiber.Ctx) error {
	id, err := s.accountTarget(c)
	if err != nil {
		return err
	}
	if err := s.userService.DeleteAccount(c.UserContext(), id, id); err != nil {
		return err
	}

	s.clearAuthCookie(c)
	sess, err := s.sessions.Get(c)
	if err != nil {
		return err
	}
	if err := sess.Reset(); err != nil {
		return err
	}
	pushFlash(sess, flashSuccess, msgAccountDeleted)
	if err := sess.Save(); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusFound)
}
