package models

import (
	"time"
)

// DefaultImageFile is the sentinel profile picture every account starts with.
const DefaultImageFile = "default.jpg"

// User is a registered author.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:20;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:120;uniqueIndex;not null" json:"email"`
	ImageFile string    `gorm:"size:64;not null;default:default.jpg" json:"image_file"`
	Password  string    `gorm:"size:72;not null" json:"-"`
	Posts     []Post    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"posts,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasDefaultImage reports whether the user still uses the sentinel picture.
func (u *User) HasDefaultImage() bool {
	return u.ImageFile == "" || u.ImageFile == DefaultImageFile
}
