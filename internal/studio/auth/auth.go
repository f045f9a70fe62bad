// Package auth carries the authenticated owner identity through contexts and
// issues the signed tokens the CLI stores between invocations.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated is returned when no owner identity is available.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

const issuer = "cstudio"

type contextKey string

const ownerContextKey contextKey = "owner"

// WithOwner returns a context carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerContextKey, ownerID)
}

// OwnerFrom extracts the owner id from ctx.
func OwnerFrom(ctx context.Context) (string, error) {
	owner, _ := ctx.Value(ownerContextKey).(string)
	if owner == "" {
		return "", ErrUnauthenticated
	}
	return owner, nil
}

// Claims holds token claims.
type Claims struct {
	OwnerID string `json:"owner_id"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies owner tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. A zero ttl means 30 days.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for ownerID and its expiry.
func (i *Issuer) Issue(ownerID string) (string, time.Time, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", time.Time{}, fmt.Errorf("owner id is required")
	}

	now := i.now()
	expires := now.Add(i.ttl)
	claims := &Claims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates a token.
func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.OwnerID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate verifies tokenStr and returns ctx carrying its owner.
func (i *Issuer) Authenticate(ctx context.Context, tokenStr string) (context.Context, error) {
	if tokenStr == "" {
		return ctx, ErrUnauthenticated
	}
	claims, err := i.Verify(tokenStr)
	if err != nil {
		return ctx, err
	}
	return WithOwner(ctx, claims.OwnerID), nil
}

// SaveToken writes tokenStr to path with owner-only permissions.
func SaveToken(path, tokenStr string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(tokenStr+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// LoadToken reads a token written by SaveToken. A missing file yields
// ErrUnauthenticated.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// RemoveToken deletes the token file. A missing file is not an error.
func RemoveToken(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
