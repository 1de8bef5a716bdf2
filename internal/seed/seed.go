// Package seed fills a database with demo authors and posts for development
// and manual testing.
package seed

import (
	"fmt"
	"log/slog"
	"time"

	"quillpost/internal/models"

	"gorm.io/gorm"
)

// Options configures a seeding run. Zero values pick defaults.
type Options struct {
	NumUsers         int
	PostsPerUser     int
	ScheduledPerUser int
	ShouldClean      bool
	DryRun           bool
	BatchSize        int
	MaxDays          int
	// HashCost is the bcrypt cost of the shared password; tests lower it.
	HashCost int
	RandSeed int64
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.MaxDays <= 0 {
		o.MaxDays = 90
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.RandSeed == 0 {
		o.RandSeed = time.Now().UnixNano()
	}
	return o
}

// Summary counts what a run created.
type Summary struct {
	Users     int
	Published int
	Scheduled int
}

// DemoUsernames are always created first so there is a known login.
var DemoUsernames = []string{"demo", "writer"}

// Seed creates NumUsers authors, the demo accounts among them, each with
// PostsPerUser published and ScheduledPerUser scheduled posts.
func Seed(db *gorm.DB, opts Options) (*Summary, error) {
	opts = opts.withDefaults()
	slog.Info("seeding database", "users", opts.NumUsers, "posts_per_user", opts.PostsPerUser,
		"scheduled_per_user", opts.ScheduledPerUser, "dry_run", opts.DryRun)

	if opts.ShouldClean && !opts.DryRun {
		if err := ClearData(db); err != nil {
			return nil, fmt.Errorf("clear data: %w", err)
		}
	}

	f, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		var override []func(*models.User)
		if i < len(DemoUsernames) {
			name := DemoUsernames[i]
			override = append(override, func(u *models.User) {
				u.Username = name
				u.Email = name + "@example.com"
			})
		}
		user, err := f.CreateUser(override...)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, user)
	}

	sum := &Summary{Users: len(users)}
	posts := make([]*models.Post, 0, opts.BatchSize)
	flush := func() error {
		if err := f.CreatePostsBatch(posts); err != nil {
			return fmt.Errorf("create posts: %w", err)
		}
		posts = posts[:0]
		return nil
	}
	for _, user := range users {
		for i := 0; i < opts.PostsPerUser; i++ {
			posts = append(posts, f.BuildPost(user))
			sum.Published++
		}
		for i := 0; i < opts.ScheduledPerUser; i++ {
			posts = append(posts, f.BuildScheduledPost(user))
			sum.Scheduled++
		}
		if len(posts) >= opts.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	slog.Info("seeding done", "users", sum.Users, "published", sum.Published, "scheduled", sum.Scheduled)
	return sum, nil
}

// ClearData removes every post and user. Works on both Postgres and SQLite.
func ClearData(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&models.Post{}).Error; err != nil {
			return err
		}
		return all.Delete(&models.User{}).Error
	})
}
