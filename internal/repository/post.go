package repository

import (
	"context"
	"errors"
	"time"

	"quillpost/internal/cache"
	"quillpost/internal/models"
	"quillpost/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	// GetByID returns the post whatever its scheduled state.
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	ListPublished(ctx context.Context, page int) (*models.PostPage, error)
	ListPublishedByUser(ctx context.Context, userID uint, page int) (*models.PostPage, error)
	SearchPublished(ctx context.Context, keyword string, page int) (*models.PostPage, error)
	// ListDue returns scheduled posts whose time is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]models.Post, error)
	// Publish clears the scheduled time of one post. It reports false when the
	// post was already published or no longer exists.
	Publish(ctx context.Context, id uint) (bool, error)
}

type postRepository struct {
	db    *gorm.DB
	cache *cache.Store
}

// NewPostRepository returns a new PostRepository implementation.
func NewPostRepository(db *gorm.DB, store *cache.Store) PostRepository {
	return &postRepository{db: db, cache: store}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	if post.IsPublished() {
		r.cache.InvalidatePostsList(ctx)
	}
	return nil
}

// GetByID caches published posts only. A scheduled post changes state when
// the publisher flips it, so it is always read from the database.
func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	key := cache.PostKey(id)
	if found, err := r.cache.GetJSON(ctx, key, &post); err == nil && found {
		return &post, nil
	}
	if err := r.db.WithContext(ctx).Preload("User").First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, models.NewInternalError(err)
	}
	if post.IsPublished() {
		_ = r.cache.SetJSON(ctx, key, &post, cache.PostTTL)
	}
	return &post, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", post.ID).
		Updates(map[string]interface{}{
			"title":       post.Title,
			"content":     post.Content,
			"date_posted": post.DatePosted,
		})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", post.ID)
	}
	r.cache.Invalidate(ctx, cache.PostKey(post.ID))
	r.cache.InvalidatePostsList(ctx)
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	r.cache.Invalidate(ctx, cache.PostKey(id))
	r.cache.InvalidatePostsList(ctx)
	return nil
}

func (r *postRepository) ListPublished(ctx context.Context, page int) (*models.PostPage, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "ListPublished", "posts")
	defer span.End()
	defer observability.TrackQuery("list_published", "posts")()

	var out models.PostPage
	err := r.cache.Aside(ctx, r.cache.PostsListKey(ctx, page), &out, cache.PostsListTTL, func() error {
		p, err := paginate(ctx, r.db, page, published)
		if err != nil {
			return err
		}
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *postRepository) ListPublishedByUser(ctx context.Context, userID uint, page int) (*models.PostPage, error) {
	defer observability.TrackQuery("list_by_user", "posts")()
	return paginate(ctx, r.db, page, func(db *gorm.DB) *gorm.DB {
		return published(db).Where("user_id = ?", userID)
	})
}

func (r *postRepository) SearchPublished(ctx context.Context, keyword string, page int) (*models.PostPage, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "SearchPublished", "posts")
	defer span.End()
	defer observability.TrackQuery("search", "posts")()

	pattern := containsPattern(keyword)
	return paginate(ctx, r.db, page, func(db *gorm.DB) *gorm.DB {
		return published(db).Where(`LOWER(content) LIKE ? ESCAPE '\'`, pattern)
	})
}

func (r *postRepository) ListDue(ctx context.Context, now time.Time) ([]models.Post, error) {
	var posts []models.Post
	if err := r.db.WithContext(ctx).
		Where("date_scheduled IS NOT NULL AND date_scheduled <= ?", now).
		Order("date_scheduled ASC, id ASC").
		Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) Publish(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND date_scheduled IS NOT NULL", id).
		Update("date_scheduled", nil)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	r.cache.Invalidate(ctx, cache.PostKey(id))
	r.cache.InvalidatePostsList(ctx)
	return true, nil
}
