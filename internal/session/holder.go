// Package session holds per-browser-session values: the backend token pair,
// the PKCE verifier of a pending sign-in and the active conversation id.
// Nothing stored here is authoritative; token pairs are revalidated against
// the auth backend on every request.
package session

import (
	"context"
	"fmt"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyPKCEVerifier = "pkce_verifier"
	KeyActiveChat   = "active_chat"
)

// Holder is one browser session's key/value slot. Get and Remove on a
// missing key are not errors.
type Holder interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Remove(ctx context.Context, key string) error
}

// Store hands out the Holder for a browser session id.
type Store interface {
	Scope(sessionID string) Holder
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoadPair returns nil when no access token is held.
func LoadPair(ctx context.Context, h Holder) (*TokenPair, error) {
	access, ok, err := h.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, fmt.Errorf("load access token failed: %w", err)
	}
	if !ok || access == "" {
		return nil, nil
	}
	refresh, _, err := h.Get(ctx, KeyRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("load refresh token failed: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func StorePair(ctx context.Context, h Holder, pair TokenPair) error {
	if err := h.Put(ctx, KeyAccessToken, pair.AccessToken); err != nil {
		return fmt.Errorf("store access token failed: %w", err)
	}
	if err := h.Put(ctx, KeyRefreshToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("store refresh token failed: %w", err)
	}
	return nil
}

func ClearPair(ctx context.Context, h Holder) error {
	if err := h.Remove(ctx, KeyAccessToken); err != nil {
		return fmt.Errorf("clear access token failed: %w", err)
	}
	if err := h.Remove(ctx, KeyRefreshToken); err != nil {
		return fmt.Errorf("clear refresh token failed: %w", err)
	}
	return nil
}
