package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"quillpost/internal/cache"
	"quillpost/internal/database"
	"quillpost/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// setupSQLiteDB opens a private in-memory database with the full schema.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func setupStore(t *testing.T) (*miniredis.Miniredis, *cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, cache.NewStore(client)
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username:  username,
		Email:     username + "@x.com",
		ImageFile: models.DefaultImageFile,
		Password:  "hash",
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedPost(t *testing.T, db *gorm.DB, userID uint, title, content string, posted time.Time, scheduled *time.Time) *models.Post {
	t.Helper()
	p := &models.Post{
		Title:         title,
		Content:       content,
		DatePosted:    posted.UTC(),
		DateScheduled: scheduled,
		UserID:        userID,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func ptrTime(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
