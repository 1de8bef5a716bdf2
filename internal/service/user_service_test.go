package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"quillpost/internal/auth"
	"quillpost/internal/models"
	"quillpost/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type userFixture struct {
	svc      *UserService
	repo     *userRepoStub
	mail     *testutil.MailRecorder
	pictures *PictureService
	tokens   *auth.ResetTokens
	now      *time.Time
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	now := testNow
	clock := func() time.Time { return now }
	salt, err := auth.NewSalt()
	require.NoError(t, err)
	f := &userFixture{
		repo:     noopUserRepo(),
		mail:     &testutil.MailRecorder{},
		pictures: NewPictureService(t.TempDir(), 1),
		tokens:   auth.NewResetTokens("test-secret", salt, 100000*time.Second, clock),
		now:      &now,
	}
	f.svc = NewUserService(f.repo, f.tokens, f.mail, f.pictures, UserServiceOptions{
		BaseURL:  "https://blog.example",
		Sender:   "noreply@blog.example",
		HashCost: bcrypt.MinCost,
	})
	return f
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestUserServiceRegister(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	var created *models.User
	f.repo.createFn = func(_ context.Context, u *models.User) error { created = u; u.ID = 1; return nil }

	user, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "alice", Email: "a@x.io", Password: "pw", Confirm: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(1), user.ID)
	assert.Equal(t, models.DefaultImageFile, created.ImageFile)
	assert.NotEqual(t, "pw", created.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Password), []byte("pw")))
}

func TestUserServiceRegisterRejectsTaken(t *testing.T) {
	t.Parallel()
	existing := &models.User{ID: 1, Username: "alice", Email: "a@x.io"}

	tests := []struct {
		name    string
		in      RegisterInput
		field   string
		message string
	}{
		{"Username Taken", RegisterInput{Username: "alice", Email: "b@x.io", Password: "pw", Confirm: "pw"},
			"username", "This username is taken. Please choose another one!"},
		{"Email Taken", RegisterInput{Username: "bob", Email: "a@x.io", Password: "pw", Confirm: "pw"},
			"email", "This email already has an account. Please log in instead."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t)
			f.repo.getByUsernameFn = func(_ context.Context, name string) (*models.User, error) {
				if name == existing.Username {
					return existing, nil
				}
				return nil, nil
			}
			f.repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
				if email == existing.Email {
					return existing, nil
				}
				return nil, nil
			}
			f.repo.createFn = func(context.Context, *models.User) error { return errors.New("must not create") }

			_, err := f.svc.Register(context.Background(), tt.in)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestUserServiceRegisterMapsRaceToFieldMessage(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	f.repo.createFn = func(context.Context, *models.User) error {
		return models.NewFieldError("email", "User already exists")
	}
	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "bob", Email: "b@x.io", Password: "pw", Confirm: "pw"})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "This email already has an account. Please log in instead.", appErr.Message)
}

func TestUserServiceRegisterValidation(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	tests := []struct {
		in    RegisterInput
		field string
	}{
		{RegisterInput{Username: "a", Email: "a@x.io", Password: "pw", Confirm: "pw"}, "username"},
		{RegisterInput{Username: strings.Repeat("a", 21), Email: "a@x.io", Password: "pw", Confirm: "pw"}, "username"},
		{RegisterInput{Username: "alice", Email: "nope", Password: "pw", Confirm: "pw"}, "email"},
		{RegisterInput{Username: "alice", Email: "a@x.io", Password: "pw", Confirm: "px"}, "password"},
	}
	for _, tt := range tests {
		_, err := f.svc.Register(context.Background(), tt.in)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, tt.field, appErr.Field)
	}
}

func TestUserServiceAuthenticate(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	stored := &models.User{ID: 1, Email: "a@x.io", Password: hashOf(t, "pw")}
	f.repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
		if email == stored.Email {
			return stored, nil
		}
		return nil, nil
	}

	user, err := f.svc.Authenticate(context.Background(), "a@x.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, uint(1), user.ID)

	_, err = f.svc.Authenticate(context.Background(), "a@x.io", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Authenticate(context.Background(), "b@x.io", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserServicePasswordResetFlow(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	alice := &models.User{ID: 4, Username: "alice", Email: "a@x.io", Password: hashOf(t, "old")}
	f.repo.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
		if email == alice.Email {
			return alice, nil
		}
		return nil, nil
	}
	f.repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		if id == alice.ID {
			return alice, nil
		}
		return nil, models.NewNotFoundError("User", id)
	}
	var newHash string
	f.repo.updatePasswordFn = func(_ context.Context, id uint, h string) error {
		assert.Equal(t, alice.ID, id)
		newHash = h
		return nil
	}

	err := f.svc.RequestPasswordReset(context.Background(), "nobody@x.io")
	assert.True(t, models.IsValidation(err))
	assert.Empty(t, f.mail.Sent())

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "a@x.io"))
	msg, ok := f.mail.Last()
	require.True(t, ok)
	assert.Equal(t, "a@x.io", msg.To)
	assert.Equal(t, "noreply@blog.example", msg.From)
	assert.Equal(t, "Password Reset Request", msg.Subject)

	const prefix = "https://blog.example/reset_password/"
	idx := strings.Index(msg.Body, prefix)
	require.GreaterOrEqual(t, idx, 0)
	token := strings.Fields(msg.Body[idx+len(prefix):])[0]

	user, err := f.svc.VerifyResetToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	require.NoError(t, f.svc.ResetPassword(context.Background(), ResetPasswordInput{UserID: user.ID, Password: "new", Confirm: "new"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("new")))
}

func TestUserServiceVerifyResetTokenFailures(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	f.repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		if id == 4 {
			return &models.User{ID: 4}, nil
		}
		return nil, models.NewNotFoundError("User", id)
	}

	token, err := f.tokens.Issue(4)
	require.NoError(t, err)

	tampered := []byte(token)
	last := len(tampered) - 2
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}
	_, err = f.svc.VerifyResetToken(context.Background(), string(tampered))
	assert.True(t, models.IsNotFound(err), "tampered")

	_, err = f.svc.VerifyResetToken(context.Background(), "garbage")
	assert.True(t, models.IsNotFound(err), "malformed")

	ghost, err := f.tokens.Issue(99)
	require.NoError(t, err)
	_, err = f.svc.VerifyResetToken(context.Background(), ghost)
	assert.True(t, models.IsNotFound(err), "missing user")

	*f.now = f.now.Add(100001 * time.Second)
	_, err = f.svc.VerifyResetToken(context.Background(), token)
	assert.True(t, models.IsNotFound(err), "expired")
}

func TestUserServiceUpdateAccountChecksOnlyChangedFields(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	f.repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Username: "alice", Email: "a@x.io", ImageFile: models.DefaultImageFile}, nil
	}
	lookups := 0
	f.repo.getByUsernameFn = func(context.Context, string) (*models.User, error) { lookups++; return &models.User{ID: 1}, nil }
	f.repo.getByEmailFn = func(context.Context, string) (*models.User, error) { lookups++; return &models.User{ID: 1}, nil }

	user, err := f.svc.UpdateAccount(context.Background(), UpdateAccountInput{UserID: 1, Username: "alice", Email: "a@x.io"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Zero(t, lookups)

	_, err = f.svc.UpdateAccount(context.Background(), UpdateAccountInput{UserID: 1, Username: "bob", Email: "a@x.io"})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "username", appErr.Field)
}

func TestUserServiceUpdateAccountReplacesPicture(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	old, err := f.pictures.Save(context.Background(), PictureUpload{Filename: "old.png", Content: testutil.TinyPNG(t, 10, 10)})
	require.NoError(t, err)
	f.repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Username: "alice", Email: "a@x.io", ImageFile: old}, nil
	}

	user, err := f.svc.UpdateAccount(context.Background(), UpdateAccountInput{
		UserID: 1, Username: "alice", Email: "a@x.io",
		Picture: &PictureUpload{Filename: "new.jpg", Content: testutil.TinyJPEG(t, 300, 300)},
	})
	require.NoError(t, err)
	assert.NotEqual(t, old, user.ImageFile)
	_, err = os.Stat(f.pictures.Path(user.ImageFile))
	assert.NoError(t, err)
	_, err = os.Stat(f.pictures.Path(old))
	assert.True(t, os.IsNotExist(err), "old picture removed after commit")
}

func TestUserServiceUpdateAccountCleansUpOnFailure(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	f.repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Username: "alice", Email: "a@x.io", ImageFile: models.DefaultImageFile}, nil
	}
	f.repo.updateFn = func(context.Context, *models.User) error {
		return models.NewInternalError(errors.New("db down"))
	}

	_, err := f.svc.UpdateAccount(context.Background(), UpdateAccountInput{
		UserID: 1, Username: "alice", Email: "a@x.io",
		Picture: &PictureUpload{Filename: "new.png", Content: testutil.TinyPNG(t, 30, 30)},
	})
	require.Error(t, err)

	entries, err := os.ReadDir(f.pictures.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "new picture must not be orphaned")
}

func TestUserServiceDeleteAccount(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	pic, err := f.pictures.Save(context.Background(), PictureUpload{Filename: "me.png", Content: testutil.TinyPNG(t, 10, 10)})
	require.NoError(t, err)
	f.repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, ImageFile: pic}, nil
	}
	var deleted uint
	f.repo.deleteFn = func(_ context.Context, id uint) error { deleted = id; return nil }

	err = f.svc.DeleteAccount(context.Background(), 2, 1)
	assert.True(t, models.IsForbidden(err))
	assert.Zero(t, deleted)

	require.NoError(t, f.svc.DeleteAccount(context.Background(), 1, 1))
	assert.Equal(t, uint(1), deleted)
	_, err = os.Stat(f.pictures.Path(pic))
	assert.True(t, os.IsNotExist(err))
}

func TestUserServiceDeleteAccountKeepsPictureWhenRowsFail(t *testing.T) {
	t.Parallel()
	f := newUserFixture(t)
	pic, err := f.pictures.Save(context.Background(), PictureUpload{Filename: "me.png", Content: testutil.TinyPNG(t, 10, 10)})
	require.NoError(t, err)
	f.repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, ImageFile: pic}, nil
	}
	f.repo.deleteFn = func(context.Context, uint) error { return models.NewInternalError(errors.New("db down")) }

	require.Error(t, f.svc.DeleteAccount(context.Background(), 1, 1))
	_, err = os.Stat(f.pictures.Path(pic))
	assert.NoError(t, err)
}
