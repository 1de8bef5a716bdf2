// Package auth issues and verifies the signed tokens behind login sessions
// and password resets.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer        = "quillpost"
	audSession    = "session"
	audReset      = "password-reset"
	saltLength    = 16
	SessionCookie = "quillpost_auth"
)

// ErrInvalidToken covers every verification failure: bad signature,
// malformed input, wrong audience or expiry.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload shared by session and reset tokens.
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// NewSalt returns random bytes meant to be generated once per process and
// mixed into the reset-token signing key.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating token salt: %w", err)
	}
	return salt, nil
}

type signer struct {
	key      []byte
	audience string
	now      func() time.Time
}

func (s signer) issue(userID uint, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  jwt.ClaimStrings{s.audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s signer) verify(tokenString string) (uint, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return s.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(s.audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		// the last signature character carries padding bits
		jwt.WithStrictDecoding(),
	)
	if err != nil || !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

// SessionTokens signs the login cookie.
type SessionTokens struct {
	signer signer
}

// NewSessionTokens builds a session signer keyed by the application secret.
func NewSessionTokens(secret string, now func() time.Time) *SessionTokens {
	if now == nil {
		now = time.Now
	}
	return &SessionTokens{signer: signer{key: []byte(secret), audience: audSession, now: now}}
}

// Issue returns a session token for userID valid for ttl.
func (s *SessionTokens) Issue(userID uint, ttl time.Duration) (string, error) {
	return s.signer.issue(userID, ttl)
}

// Parse returns the user id carried by a valid session token.
func (s *SessionTokens) Parse(token string) (uint, error) {
	return s.signer.verify(token)
}

// ResetTokens signs password reset links. The key combines the secret with
// the process salt, so links die with the process that issued them.
type ResetTokens struct {
	signer signer
	ttl    time.Duration
}

// NewResetTokens builds a reset-token signer.
func NewResetTokens(secret string, salt []byte, ttl time.Duration, now func() time.Time) *ResetTokens {
	if now == nil {
		now = time.Now
	}
	key := make([]byte, 0, len(secret)+len(salt))
	key = append(key, secret...)
	key = append(key, salt...)
	return &ResetTokens{
		signer: signer{key: key, audience: audReset, now: now},
		ttl:    ttl,
	}
}

// Issue returns a signed reset token for userID.
func (r *ResetTokens) Issue(userID uint) (string, error) {
	return r.signer.issue(userID, r.ttl)
}

// Verify returns the user id bound to token or ErrInvalidToken.
func (r *ResetTokens) Verify(token string) (uint, error) {
	return r.signer.verify(token)
}
