// Package repository implements the data access layer for users and posts.
package repository

import (
	"context"
	"errors"
	"strings"

	"quillpost/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, pgUniqueViolation)
}

// uniqueViolationField guesses which user column a unique violation hit.
func uniqueViolationField(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName != "" {
		if strings.Contains(pgErr.ConstraintName, "email") {
			return "email"
		}
		return "username"
	}
	if strings.Contains(strings.ToLower(err.Error()), "email") {
		return "email"
	}
	return "username"
}

// paginate runs a count and one page of the published-post query built by
// scope. Page numbers start at 1; an out-of-range page is not-found.
func paginate(ctx context.Context, db *gorm.DB, page int, scope func(*gorm.DB) *gorm.DB) (*models.PostPage, error) {
	if page < 1 {
		return nil, models.NewNotFoundError("Page", page)
	}

	var total int64
	if err := scope(db.WithContext(ctx).Model(&models.Post{})).Count(&total).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	posts := make([]*models.Post, 0, models.PostsPerPage)
	if err := scope(db.WithContext(ctx)).
		Preload("User").
		Order("date_posted DESC, id DESC").
		Limit(models.PostsPerPage).
		Offset((page - 1) * models.PostsPerPage).
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	if page > 1 && len(posts) == 0 {
		return nil, models.NewNotFoundError("Page", page)
	}

	return &models.PostPage{
		Posts:   posts,
		Page:    page,
		PerPage: models.PostsPerPage,
		Total:   total,
	}, nil
}

func published(db *gorm.DB) *gorm.DB {
	return db.Where("date_scheduled IS NULL")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching keyword anywhere, with
// wildcards in keyword taken literally.
func containsPattern(keyword string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(keyword)) + "%"
}
