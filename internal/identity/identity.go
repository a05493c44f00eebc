// PushRelay - Durable Delivery Layer for Mobile Push Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pushrelay

// Package identity resolves the opaque user tag that scopes pending
// records to the signed-in user.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/pushrelay/internal/config"
)

// ErrUnavailable is returned while no user is known.
var ErrUnavailable = errors.New("user identity unavailable")

// Resolver returns the current user tag.
type Resolver interface {
	CurrentUserTag(ctx context.Context) (string, error)
}

// Static returns a fixed tag.
type Static struct {
	mu  sync.RWMutex
	tag string
}

// NewStatic creates a resolver for tag. An empty tag means no user yet.
func NewStatic(tag string) *Static {
	return &Static{tag: tag}
}

// CurrentUserTag implements Resolver.
func (s *Static) CurrentUserTag(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tag == "" {
		return "", ErrUnavailable
	}
	return s.tag, nil
}

// Set replaces the tag.
func (s *Static) Set(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tag = tag
}

// JWTResolver derives the tag from a claim of the application's JWT. The
// token is issued to the application by its own backend and is only read
// here, never verified; the server performs verification.
type JWTResolver struct {
	claim  string
	parser *jwt.Parser

	mu    sync.RWMutex
	token string
}

// NewJWTResolver creates a resolver reading claim. token may be empty until
// the user signs in.
func NewJWTResolver(claim, token string) *JWTResolver {
	return &JWTResolver{
		claim:  claim,
		parser: jwt.NewParser(),
		token:  token,
	}
}

// SetToken replaces the JWT, e.g. after sign-in or sign-out.
func (r *JWTResolver) SetToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
}

// CurrentUserTag implements Resolver.
func (r *JWTResolver) CurrentUserTag(context.Context) (string, error) {
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()

	if token == "" {
		return "", ErrUnavailable
	}

	claims := jwt.MapClaims{}
	if _, _, err := r.parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: parse token: %v", ErrUnavailable, err)
	}

	value, ok := claims[r.claim]
	if !ok {
		return "", fmt.Errorf("%w: claim %q missing", ErrUnavailable, r.claim)
	}
	matching := fmt.Sprint(value)
	if matching == "" {
		return "", fmt.Errorf("%w: claim %q empty", ErrUnavailable, r.claim)
	}
	return UserTag(matching), nil
}

// UserTag hashes a matching value into the opaque tag stored with records.
func UserTag(matching string) string {
	sum := sha256.Sum256([]byte(matching))
	return hex.EncodeToString(sum[:])
}

// FromConfig builds the resolver selected by cfg.Mode.
func FromConfig(cfg *config.IdentityConfig) (Resolver, error) {
	switch cfg.Mode {
	case "", "static":
		return NewStatic(cfg.UserTag), nil
	case "jwt":
		return NewJWTResolver(cfg.MatchingClaim, cfg.JWT), nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
	}
}
