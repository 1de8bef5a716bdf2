package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"quillpost/internal/models"
	"quillpost/internal/repository"
	"quillpost/internal/validation"
)

// ErrScheduleNotInFuture is returned when a scheduled post is not strictly in
// the future.
var ErrScheduleNotInFuture = errors.New("scheduled time must be in the future")

type PostService struct {
	postRepo repository.PostRepository
	userRepo repository.UserRepository
	now      func() time.Time
}

type CreatePostInput struct {
	UserID  uint
	Title   string
	Content string
}

type CreateScheduledPostInput struct {
	UserID  uint
	Title   string
	Content string
	At      time.Time
}

type UpdatePostInput struct {
	UserID  uint
	PostID  uint
	Title   string
	Content string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

// NewPostService wires the post service. A nil clock means time.Now.
func NewPostService(
	postRepo repository.PostRepository,
	userRepo repository.UserRepository,
	now func() time.Time,
) *PostService {
	if now == nil {
		now = time.Now
	}
	return &PostService{postRepo: postRepo, userRepo: userRepo, now: now}
}

func validatePostFields(title, content string) error {
	if err := validation.ValidateTitle(title); err != nil {
		return models.NewFieldError("title", err.Error())
	}
	if err := validation.ValidateContent(content); err != nil {
		return models.NewFieldError("content", err.Error())
	}
	return nil
}

func (s *PostService) Create(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validatePostFields(in.Title, in.Content); err != nil {
		return nil, err
	}
	post := &models.Post{
		Title:      strings.TrimSpace(in.Title),
		Content:    in.Content,
		DatePosted: s.now().UTC(),
		UserID:     in.UserID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// CreateScheduled stores a hidden post that the publisher reveals at in.At.
func (s *PostService) CreateScheduled(ctx context.Context, in CreateScheduledPostInput) (*models.Post, error) {
	if err := validatePostFields(in.Title, in.Content); err != nil {
		return nil, err
	}
	at := in.At.UTC()
	if !at.After(s.now().UTC()) {
		return nil, ErrScheduleNotInFuture
	}
	post := &models.Post{
		Title:         strings.TrimSpace(in.Title),
		Content:       in.Content,
		DatePosted:    at,
		DateScheduled: &at,
		UserID:        in.UserID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Get returns a published post. Scheduled posts are reported as missing.
func (s *PostService) Get(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !post.IsPublished() {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}

// GetOwned returns a post the user may edit: missing, then ownership, then
// scheduled state.
func (s *PostService) GetOwned(ctx context.Context, postID, userID uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.OwnedBy(userID) {
		return nil, models.NewForbiddenError("You do not own this post")
	}
	if !post.IsPublished() {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}

func (s *PostService) Update(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.GetOwned(ctx, in.PostID, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := validatePostFields(in.Title, in.Content); err != nil {
		return nil, err
	}
	post.Title = strings.TrimSpace(in.Title)
	post.Content = in.Content
	post.DatePosted = s.now().UTC()
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) Delete(ctx context.Context, in DeletePostInput) error {
	if _, err := s.GetOwned(ctx, in.PostID, in.UserID); err != nil {
		return err
	}
	return s.postRepo.Delete(ctx, in.PostID)
}

func (s *PostService) ListPublished(ctx context.Context, page int) (*models.PostPage, error) {
	return s.postRepo.ListPublished(ctx, page)
}

// ListByAuthor returns the author and one page of their published posts.
func (s *PostService) ListByAuthor(ctx context.Context, username string, page int) (*models.User, *models.PostPage, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, models.NewNotFoundError("User", username)
	}
	posts, err := s.postRepo.ListPublishedByUser(ctx, user.ID, page)
	if err != nil {
		return nil, nil, err
	}
	return user, posts, nil
}

func (s *PostService) Search(ctx context.Context, keyword string, page int) (*models.PostPage, error) {
	if err := validation.ValidateKeyword(keyword); err != nil {
		return nil, models.NewFieldError("keyword", err.Error())
	}
	return s.postRepo.SearchPublished(ctx, strings.TrimSpace(keyword), page)
}
