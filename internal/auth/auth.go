// Package auth resolves bearer tokens to user ids.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthorized means the request carried no valid token
var ErrUnauthorized = errors.New("invalid or expired token")

// TokenStore keeps tokens. *redis.Client implements it.
type TokenStore interface {
	StoreToken(ctx context.Context, token, userID string, ttl time.Duration) error
	LookupToken(ctx context.Context, token string) (userID string, ok bool, err error)
	RevokeToken(ctx context.Context, token string) error
}

type Authenticator struct {
	store TokenStore
}

func New(store TokenStore) *Authenticator {
	return &Authenticator{store: store}
}

// Verify resolves the token in an Authorization header. The token is the
// last space-separated part, so both "Bearer <token>" and a bare token work.
func (a *Authenticator) Verify(ctx context.Context, header string) (string, error) {
	token := lastField(header)
	if token == "" {
		return "", ErrUnauthorized
	}
	userID, ok, err := a.store.LookupToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	if !ok || userID == "" {
		return "", ErrUnauthorized
	}
	return userID, nil
}

// Issue mints a new token for userID
func (a *Authenticator) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	token := uuid.NewString()
	if err := a.store.StoreToken(ctx, token, userID, ttl); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// Revoke invalidates a token
func (a *Authenticator) Revoke(ctx context.Context, token string) error {
	return a.store.RevokeToken(ctx, token)
}

func lastField(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
