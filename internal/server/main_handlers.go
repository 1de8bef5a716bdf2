package server

import (
	"net/url"
	"strings"

	"quillpost/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Home lists published posts, newest first.
func (s *Server) Home(c *fiber.Ctx) error {
	posts, err := s.postService.ListPublished(c.UserContext(), pageParam(c))
	if err != nil {
		return err
	}
	return s.render(c, "home", fiber.Map{
		"Title":    "Home",
		"Posts":    posts,
		"PageBase": "/home?page=",
	})
}

// Search handles the keyword form (POST) and result paging (GET with
// ?keyword=). A bare GET shows the empty form.
func (s *Server) Search(c *fiber.Ctx) error {
	keyword := strings.TrimSpace(c.FormValue("keyword"))
	data := fiber.Map{
		"Title":    "Search",
		"Keyword":  keyword,
		"Posts":    (*models.PostPage)(nil),
		"PageBase": "",
	}
	if keyword == "" && c.Method() == fiber.MethodGet {
		return s.render(c, "search", data)
	}

	posts, err := s.postService.Search(c.UserContext(), keyword, pageParam(c))
	if errs, ok := formErrors(err); ok {
		return s.renderForm(c, "search", data, errs)
	}
	if err != nil {
		return err
	}
	data["Posts"] = posts
	data["PageBase"] = "/search?keyword=" + url.QueryEscape(keyword) + "&page="
	return s.render(c, "search", data)
}

func (s *Server) Announcements(c *fiber.Ctx) error {
	return s.render(c, "announcements", fiber.Map{"Title": "Announcements"})
}

func (s *Server) Dev(c *fiber.Ctx) error {
	return s.render(c, "dev", fiber.Map{"Title": "About Developer"})
}

func (s *Server) LandingPage(c *fiber.Ctx) error {
	return s.render(c, "landing", fiber.Map{"Title": "About App"})
}
