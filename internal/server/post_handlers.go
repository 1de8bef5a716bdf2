package server

import (
	"errors"
	"strconv"

	"quillpost/internal/middleware"
	"quillpost/internal/models"
	"quillpost/internal/service"
	"quillpost/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const (
	msgPostCreated = "Your post has been created!"
	msgPostUpdated = "Your post has been updated successfully!"
	msgPostDeleted = "Post deleted successfully!"
)

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ShowPost renders one published post.
func (s *Server) ShowPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return s.render(c, "post", fiber.Map{"Title": post.Title, "Post": post})
}

func postForm(legend, action string, form map[string]string) fiber.Map {
	if form == nil {
		form = map[string]string{}
	}
	return fiber.Map{"Title": legend, "Legend": legend, "Action": action, "Form": form}
}

func (s *Server) NewPostForm(c *fiber.Ctx) error {
	return s.render(c, "create_post", postForm("New Post", "/new/post", nil))
}

func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, _ := middleware.CurrentUserID(c)
	form := map[string]string{"title": c.FormValue("title"), "content": c.FormValue("content")}
	_, err := s.postService.Create(c.UserContext(), service.CreatePostInput{
		UserID:  userID,
		Title:   form["title"],
		Content: form["content"],
	})
	if errs, ok := formErrors(err); ok {
		return s.renderForm(c, "create_post", postForm("New Post", "/new/post", form), errs)
	}
	if err != nil {
		return err
	}

	if err := s.flash(c, flashSuccess, msgPostCreated); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusFound)
}

func (s *Server) ScheduledPostForm(c *fiber.Ctx) error {
	return s.render(c, "scheduled_post", fiber.Map{"Title": "Schedule Post"})
}

// CreateScheduledPost answers the plain text True or False. A time that is
// not in the future is a normal False; unreadable input is a 400.
func (s *Server) CreateScheduledPost(c *fiber.Ctx) error {
	at, err := validation.ParseScheduleTime(c.FormValue("datetime"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("False")
	}

	userID, _ := middleware.CurrentUserID(c)
	_, err = s.postService.CreateScheduled(c.UserContext(), service.CreateScheduledPostInput{
		UserID:  userID,
		Title:   c.FormValue("title"),
		Content: c.FormValue("content"),
		At:      at,
	})
	switch {
	case errors.Is(err, service.ErrScheduleNotInFuture):
		return c.SendString("False")
	case models.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).SendString("False")
	case err != nil:
		return err
	}
	return c.SendString("True")
}

func (s *Server) UpdatePostForm(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID, _ := middleware.CurrentUserID(c)
	post, err := s.postService.GetOwned(c.UserContext(), id, userID)
	if err != nil {
		return err
	}
	return s.render(c, "create_post", postForm("Update Post", "/post/"+itoa(id)+"/update",
		map[string]string{"title": post.Title, "content": post.Content}))
}

func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID, _ := middleware.CurrentUserID(c)
	form := map[string]string{"title": c.FormValue("title"), "content": c.FormValue("content")}
	_, err = s.postService.Update(c.UserContext(), service.UpdatePostInput{
		UserID:  userID,
		PostID:  id,
		Title:   form["title"],
		Content: form["content"],
	})
	if errs, ok := formErrors(err); ok {
		return s.renderForm(c, "create_post", postForm("Update Post", "/post/"+itoa(id)+"/update", form), errs)
	}
	if err != nil {
		return err
	}

	if err := s.flash(c, flashSuccess, msgPostUpdated); err != nil {
		return err
	}
	return c.Redirect("/post/"+itoa(id), fiber.StatusFound)
}

func (s *Server) DeletePostConfirm(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID, _ := middleware.CurrentUserID(c)
	post, err := s.postService.GetOwned(c.UserContext(), id, userID)
	if err != nil {
		return err
	}
	return s.render(c, "confirm_delete", fiber.Map{
		"Title":   "Delete Post",
		"Heading": "Delete Post?",
		"Prompt":  "\"" + post.Title + "\" will be removed. This cannot be undone.",
		"Action":  "/post/" + itoa(id) + "/delete",
		"Cancel":  "/post/" + itoa(id),
	})
}

func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	userID, _ := middleware.CurrentUserID(c)
	if err := s.postService.Delete(c.UserContext(), service.DeletePostInput{UserID: userID, PostID: id}); err != nil {
		return err
	}

	if err := s.flash(c, flashSuccess, msgPostDeleted); err != nil {
		return err
	}
	return c.Redirect("/", fiber.StatusFound)
}
