package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"quillpost/internal/auth"
	"quillpost/internal/mailer"
	"quillpost/internal/models"
	"quillpost/internal/repository"
	"quillpost/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

const (
	msgUsernameTaken = "This username is taken. Please choose another one!"
	msgEmailTaken    = "This email already has an account. Please log in instead."
	msgNoAccount     = "There is no account with that email. You must register first."
)

type UserService struct {
	userRepo repository.UserRepository
	reset    *auth.ResetTokens
	mail     mailer.Mailer
	pictures *PictureService
	opts     UserServiceOptions
}

// UserServiceOptions holds the non-dependency settings of UserService.
type UserServiceOptions struct {
	// BaseURL prefixes links sent by mail.
	BaseURL string
	// Sender is the From address of outgoing mail.
	Sender string
	// HashCost is the bcrypt cost, bcrypt.DefaultCost when zero.
	HashCost int
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Confirm  string
}

type UpdateAccountInput struct {
	UserID   uint
	Username string
	Email    string
	Picture  *PictureUpload
}

type ResetPasswordInput struct {
	UserID   uint
	Password string
	Confirm  string
}

func NewUserService(
	userRepo repository.UserRepository,
	reset *auth.ResetTokens,
	mail mailer.Mailer,
	pictures *PictureService,
	opts UserServiceOptions,
) *UserService {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	return &UserService{userRepo: userRepo, reset: reset, mail: mail, pictures: pictures, opts: opts}
}

func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", username)
	}
	return user, nil
}

func (s *UserService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.HashCost)
	if err != nil {
		return "", models.NewInternalError(fmt.Errorf("hash password: %w", err))
	}
	return string(h), nil
}

// checkAvailable rejects a username or email that another account holds.
func (s *UserService) checkAvailable(ctx context.Context, username, email string) error {
	if username != "" {
		u, err := s.userRepo.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if u != nil {
			return models.NewFieldError("username", msgUsernameTaken)
		}
	}
	if email != "" {
		u, err := s.userRepo.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if u != nil {
			return models.NewFieldError("email", msgEmailTaken)
		}
	}
	return nil
}

// takenMessage rewrites a unique violation that slipped past checkAvailable.
func takenMessage(err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code != models.CodeValidation {
		return err
	}
	switch appErr.Field {
	case "username":
		return models.NewFieldError("username", msgUsernameTaken)
	case "email":
		return models.NewFieldError("email", msgEmailTaken)
	}
	return err
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewFieldError("username", err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewFieldError("email", err.Error())
	}
	if err := validation.ValidatePassword(in.Password, in.Confirm); err != nil {
		return nil, models.NewFieldError("password", err.Error())
	}
	if err := s.checkAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:  username,
		Email:     email,
		ImageFile: models.DefaultImageFile,
		Password:  hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, takenMessage(err)
	}
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// RequestPasswordReset mails a reset link to the account holding email.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validation.ValidateEmail(email); err != nil {
		return models.NewFieldError("email", err.Error())
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewFieldError("email", msgNoAccount)
	}

	token, err := s.reset.Issue(user.ID)
	if err != nil {
		return models.NewInternalError(fmt.Errorf("issue reset token: %w", err))
	}
	msg := mailer.PasswordResetMessage(s.opts.Sender, user.Email, mailer.ResetLink(s.opts.BaseURL, token))
	if err := s.mail.Send(ctx, msg); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// VerifyResetToken resolves a reset token to its user. Every failure is
// reported as not-found.
func (s *UserService) VerifyResetToken(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.reset.Verify(token)
	if err != nil {
		return nil, models.NewNotFoundError("Reset token", "")
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewNotFoundError("Reset token", "")
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := validation.ValidatePassword(in.Password, in.Confirm); err != nil {
		return models.NewFieldError("password", err.Error())
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePassword(ctx, in.UserID, hash)
}

// UpdateAccount changes username, email and optionally the picture. A new
// picture is written before the row update and removed again if the update
// fails; the previous picture goes only after the update succeeds.
func (s *UserService) UpdateAccount(ctx context.Context, in UpdateAccountInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewFieldError("username", err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewFieldError("email", err.Error())
	}

	var checkUsername, checkEmail string
	if username != user.Username {
		checkUsername = username
	}
	if email != user.Email {
		checkEmail = email
	}
	if err := s.checkAvailable(ctx, checkUsername, checkEmail); err != nil {
		return nil, err
	}

	previous := user.ImageFile
	var saved string
	if in.Picture != nil {
		saved, err = s.pictures.Save(ctx, *in.Picture)
		if err != nil {
			return nil, err
		}
		user.ImageFile = saved
	}
	user.Username = username
	user.Email = email

	if err := s.userRepo.Update(ctx, user); err != nil {
		if saved != "" {
			if rmErr := s.pictures.Remove(saved); rmErr != nil {
				slog.WarnContext(ctx, "failed to remove orphaned picture", "file", saved, "err", rmErr)
			}
		}
		return nil, takenMessage(err)
	}
	if saved != "" && previous != saved {
		if err := s.pictures.Remove(previous); err != nil {
			slog.WarnContext(ctx, "failed to remove previous picture", "file", previous, "err", err)
		}
	}
	return user, nil
}

// DeleteAccount removes the target account and its posts, then its picture.
// Only the account holder may delete it.
func (s *UserService) DeleteAccount(ctx context.Context, requesterID, targetID uint) error {
	if requesterID != targetID {
		return models.NewForbiddenError("You can only delete your own account")
	}
	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.userRepo.Delete(ctx, targetID); err != nil {
		return err
	}
	if !user.HasDefaultImage() {
		if err := s.pictures.Remove(user.ImageFile); err != nil {
			slog.ErrorContext(ctx, "failed to remove picture of deleted user", "user_id", targetID, "file", user.ImageFile, "err", err)
		}
	}
	return nil
}
