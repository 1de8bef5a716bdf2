// Package models contains data structures for the blog's domain models.
package models

import (
	"time"
)

// PostsPerPage is the page size shared by every post listing.
const PostsPerPage = 5

// Post is a blog entry. It is published exactly when DateScheduled is nil.
type Post struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Title         string     `gorm:"size:100;not null" json:"title"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	DatePosted    time.Time  `gorm:"not null;index" json:"date_posted"`
	DateScheduled *time.Time `gorm:"index" json:"date_scheduled,omitempty"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	User          User       `gorm:"foreignKey:UserID" json:"author"`
}

// IsPublished reports whether the post is visible to readers.
func (p *Post) IsPublished() bool {
	return p.DateScheduled == nil
}

// OwnedBy reports whether userID authored the post.
func (p *Post) OwnedBy(userID uint) bool {
	return p.UserID == userID
}

// PostPage is one page of a post listing.
type PostPage struct {
	Posts   []*Post
	Page    int
	PerPage int
	Total   int64
}

// Pages returns the total number of pages, at least one.
func (p *PostPage) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

func (p *PostPage) HasPrev() bool { return p.Page > 1 }
func (p *PostPage) HasNext() bool { return p.Page < p.Pages() }
func (p *PostPage) PrevNum() int  { return p.Page - 1 }
func (p *PostPage) NextNum() int  { return p.Page + 1 }

// PageNumbers lists every page number for pagination links.
func (p *PostPage) PageNumbers() []int {
	n := p.Pages()
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
