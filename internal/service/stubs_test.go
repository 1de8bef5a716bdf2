package service

import (
	"context"
	"time"

	"quillpost/internal/models"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn     func(context.Context, *models.Post) error
	getByIDFn    func(context.Context, uint) (*models.Post, error)
	updateFn     func(context.Context, *models.Post) error
	deleteFn     func(context.Context, uint) error
	listFn       func(context.Context, int) (*models.PostPage, error)
	listByUserFn func(context.Context, uint, int) (*models.PostPage, error)
	searchFn     func(context.Context, string, int) (*models.PostPage, error)
	listDueFn    func(context.Context, time.Time) ([]models.Post, error)
	publishFn    func(context.Context, uint) (bool, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post) error {
	return s.updateFn(ctx, post)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}
func (s *postRepoStub) ListPublished(ctx context.Context, page int) (*models.PostPage, error) {
	return s.listFn(ctx, page)
}
func (s *postRepoStub) ListPublishedByUser(ctx context.Context, userID uint, page int) (*models.PostPage, error) {
	return s.listByUserFn(ctx, userID, page)
}
func (s *postRepoStub) SearchPublished(ctx context.Context, keyword string, page int) (*models.PostPage, error) {
	return s.searchFn(ctx, keyword, page)
}
func (s *postRepoStub) ListDue(ctx context.Context, now time.Time) ([]models.Post, error) {
	return s.listDueFn(ctx, now)
}
func (s *postRepoStub) Publish(ctx context.Context, id uint) (bool, error) {
	return s.publishFn(ctx, id)
}

func noopPostRepo() *postRepoStub {
	empty := func() *models.PostPage { return &models.PostPage{Page: 1, PerPage: models.PostsPerPage} }
	return &postRepoStub{
		createFn:     func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn:    func(_ context.Context, id uint) (*models.Post, error) { return nil, models.NewNotFoundError("Post", id) },
		updateFn:     func(_ context.Context, _ *models.Post) error { return nil },
		deleteFn:     func(_ context.Context, _ uint) error { return nil },
		listFn:       func(_ context.Context, _ int) (*models.PostPage, error) { return empty(), nil },
		listByUserFn: func(_ context.Context, _ uint, _ int) (*models.PostPage, error) { return empty(), nil },
		searchFn:     func(_ context.Context, _ string, _ int) (*models.PostPage, error) { return empty(), nil },
		listDueFn:    func(_ context.Context, _ time.Time) ([]models.Post, error) { return nil, nil },
		publishFn:    func(_ context.Context, _ uint) (bool, error) { return false, nil },
	}
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn        func(context.Context, uint) (*models.User, error)
	getByEmailFn     func(context.Context, string) (*models.User, error)
	getByUsernameFn  func(context.Context, string) (*models.User, error)
	createFn         func(context.Context, *models.User) error
	updateFn         func(context.Context, *models.User) error
	updatePasswordFn func(context.Context, uint, string) error
	deleteFn         func(context.Context, uint) error
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) UpdatePassword(ctx context.Context, id uint, hash string) error {
	return s.updatePasswordFn(ctx, id, hash)
}
func (s *userRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn:        func(_ context.Context, id uint) (*models.User, error) { return nil, models.NewNotFoundError("User", id) },
		getByEmailFn:     func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		getByUsernameFn:  func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		createFn:         func(_ context.Context, _ *models.User) error { return nil },
		updateFn:         func(_ context.Context, _ *models.User) error { return nil },
		updatePasswordFn: func(_ context.Context, _ uint, _ string) error { return nil },
		deleteFn:         func(_ context.Context, _ uint) error { return nil },
	}
}

// fixedClock returns a clock pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
