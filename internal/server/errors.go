package server

import (
	"errors"
	"fmt"
	"log/slog"

	"quillpost/internal/middleware"
	"quillpost/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// statusOf maps handler errors onto HTTP status codes.
func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch models.ErrorCode(err) {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeValidation:
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// errorHandler renders errors/403, errors/404 and errors/500, and a generic
// page for every other status.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := statusOf(err)
	if code >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request error",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Any("error", err),
		)
	}

	view := "errors/error"
	switch code {
	case fiber.StatusForbidden, fiber.StatusNotFound, fiber.StatusInternalServerError:
		view = fmt.Sprintf("errors/%d", code)
	}

	message := utils.StatusMessage(code)
	c.Status(code)
	if rerr := s.render(c, view, fiber.Map{"Title": message, "Code": code, "Message": message}); rerr != nil {
		middleware.Logger.ErrorContext(c.UserContext(), "error page failed", slog.Any("error", rerr))
		return c.Status(code).SendString(message)
	}
	return nil
}
