package seed

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"quillpost/internal/models"
	"quillpost/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every generated account.
const DefaultPassword = "password123"

// Factory builds users and posts with fake content and persists them.
// In DryRun mode nothing is written and synthetic IDs are assigned.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	hash  string
	// synthetic ID counter for DryRun
	nextID uint
	seq    int
}

// NewFactory hashes DefaultPassword once; every generated user shares it.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	opts = opts.withDefaults()
	cost := opts.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	return &Factory{
		db:     db,
		opts:   opts,
		faker:  gofakeit.New(opts.RandSeed),
		hash:   string(hashed),
		nextID: 1000,
	}, nil
}

// username returns a fake handle that fits the username limits. A running
// suffix keeps handles unique within one run.
func (f *Factory) username() string {
	f.seq++
	suffix := fmt.Sprintf("%d", f.seq)
	base := strings.ToLower(f.faker.Username())
	base = strings.Map(func(r rune) rune {
		if r == ' ' {
			return '_'
		}
		return r
	}, base)
	if limit := validation.UsernameMaxLen - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	for len(base)+len(suffix) < validation.UsernameMinLen {
		base += "x"
	}
	return base + suffix
}

// title returns a sentence within the post title limits.
func (f *Factory) title() string {
	for {
		s := strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 8)), ".")
		if n := utf8.RuneCountInString(s); n >= validation.TitleMinLen && n <= validation.TitleMaxLen {
			return s
		}
	}
}

// BuildUser constructs a user without saving it.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	name := f.username()
	user := &models.User{
		Username:  name,
		Email:     name + "@example.com",
		ImageFile: models.DefaultImageFile,
		Password:  f.hash,
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser constructs and persists a user.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)
	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		slog.Debug("[dry-run] create user", "username", user.Username)
		return user, nil
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a published post dated somewhere in the last MaxDays.
func (f *Factory) BuildPost(user *models.User, overrides ...func(*models.Post)) *models.Post {
	now := f.opts.Now().UTC()
	posted := f.faker.DateRange(now.AddDate(0, 0, -f.opts.MaxDays), now).UTC()
	post := &models.Post{
		Title:      f.title(),
		Content:    f.faker.Paragraph(f.faker.Number(1, 4), f.faker.Number(2, 6), 12, "\n\n"),
		DatePosted: posted,
		UserID:     user.ID,
	}
	for _, override := range overrides {
		override(post)
	}
	return post
}

// BuildScheduledPost constructs a hidden post due within the next day.
func (f *Factory) BuildScheduledPost(user *models.User, overrides ...func(*models.Post)) *models.Post {
	at := f.opts.Now().UTC().Add(time.Duration(f.faker.Number(5, 24*60)) * time.Minute)
	return f.BuildPost(user, append([]func(*models.Post){func(p *models.Post) {
		p.DatePosted = at
		p.DateScheduled = &at
	}}, overrides...)...)
}

// CreatePostsBatch persists posts in chunks of BatchSize.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, p := range posts {
			f.nextID++
			p.ID = f.nextID
		}
		slog.Debug("[dry-run] create posts", "count", len(posts))
		return nil
	}
	return f.db.CreateInBatches(posts, f.opts.BatchSize).Error
}

// CreatePost constructs and persists one published post.
func (f *Factory) CreatePost(user *models.User, overrides ...func(*models.Post)) (*models.Post, error) {
	post := f.BuildPost(user, overrides...)
	if err := f.CreatePostsBatch([]*models.Post{post}); err != nil {
		return nil, err
	}
	return post, nil
}
