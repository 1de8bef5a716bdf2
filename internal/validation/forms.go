// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	UsernameMinLen = 2
	UsernameMaxLen = 20
	EmailMaxLen    = 120
	TitleMinLen    = 10
	TitleMaxLen    = 100
	KeywordMinLen  = 2
	KeywordMaxLen  = 200
	// bcrypt ignores everything past 72 bytes.
	PasswordMaxBytes = 72
)

// ScheduleLayouts are the accepted datetime formats for scheduled posts.
var ScheduleLayouts = []string{time.RFC3339, "2006-01-02T15:04"}

func runeLength(s string, field string, lo, hi int) error {
	n := utf8.RuneCountInString(s)
	if n < lo || n > hi {
		return fmt.Errorf("%s must be between %d and %d characters long", field, lo, hi)
	}
	return nil
}

// ValidateUsername checks the username length.
func ValidateUsername(username string) error {
	return runeLength(strings.TrimSpace(username), "Username", UsernameMinLen, UsernameMaxLen)
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("Email is required")
	}
	if len(email) > EmailMaxLen {
		return fmt.Errorf("Email must not exceed %d characters", EmailMaxLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		return fmt.Errorf("Invalid email address")
	}
	return nil
}

// ValidatePassword checks a new password and its confirmation.
func ValidatePassword(password, confirm string) error {
	if password == "" {
		return fmt.Errorf("Password is required")
	}
	if len(password) > PasswordMaxBytes {
		return fmt.Errorf("Password must not exceed %d bytes", PasswordMaxBytes)
	}
	if password != confirm {
		return fmt.Errorf("Passwords must match")
	}
	return nil
}

// ValidateTitle checks the post title length.
func ValidateTitle(title string) error {
	return runeLength(strings.TrimSpace(title), "Title", TitleMinLen, TitleMaxLen)
}

// ValidateContent requires a non-blank body.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("Content is required")
	}
	return nil
}

// ValidateKeyword checks a search keyword.
func ValidateKeyword(keyword string) error {
	return runeLength(strings.TrimSpace(keyword), "Keyword", KeywordMinLen, KeywordMaxLen)
}

// ParseScheduleTime parses a schedule datetime. Values without a zone are UTC.
func ParseScheduleTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range ScheduleLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("datetime must be RFC 3339 or YYYY-MM-DDTHH:MM")
}
