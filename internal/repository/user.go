package repository

import (
	"context"
	"errors"

	"quillpost/internal/cache"
	"quillpost/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uint, hash string) error
	Delete(ctx context.Context, id uint) error
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Store
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB, store *cache.Store) UserRepository {
	return &userRepository{db: db, cache: store}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// GetByEmail returns nil, nil when no account uses email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// GetByUsername returns nil, nil when no account uses username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewFieldError(uniqueViolationField(err), "User already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Update writes the account fields. Cached posts embed the author, so they
// are retired too.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Model(user).
		Select("username", "email", "image_file", "updated_at").
		Updates(map[string]interface{}{
			"username":   user.Username,
			"email":      user.Email,
			"image_file": user.ImageFile,
		}).Error
	if err != nil {
		if isUniqueConstraintError(err) {
			return models.NewFieldError(uniqueViolationField(err), "User already exists")
		}
		return models.NewInternalError(err)
	}
	if r.cache.Enabled() {
		var postIDs []uint
		if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("user_id = ?", user.ID).Pluck("id", &postIDs).Error; err != nil {
			return models.NewInternalError(err)
		}
		r.cache.Invalidate(ctx, postKeys(postIDs)...)
	}
	r.cache.InvalidatePostsList(ctx)
	return nil
}

func postKeys(ids []uint) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cache.PostKey(id))
	}
	return keys
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uint, hash string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password", hash)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}

// Delete removes the user and every post they own in one transaction.
func (r *userRepository) Delete(ctx context.Context, id uint) error {
	var postIDs []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Post{}).Where("user_id = ?", id).Pluck("id", &postIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("User", id)
		}
		return nil
	})
	if err != nil {
		if models.IsNotFound(err) {
			return err
		}
		return models.NewInternalError(err)
	}

	r.cache.Invalidate(ctx, postKeys(postIDs)...)
	r.cache.InvalidatePostsList(ctx)
	return nil
}
