// Package gotrue talks to the hosted backend's auth API (GoTrue-compatible
// REST endpoints under /auth/v1).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var (
	ErrUnauthorized = errors.New("auth backend rejected the token")
	ErrInvalidGrant = errors.New("auth backend rejected the grant")
)

// APIError carries the backend's status and message. It unwraps to
// ErrUnauthorized or ErrInvalidGrant where that applies.
type APIError struct {
	Status  int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth backend status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// NewVerifier returns a PKCE verifier and its S256 challenge.
func NewVerifier() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}

// AuthorizeURL is where the browser goes to sign in with provider. The
// backend redirects back to redirectTo with ?code=.
func (c *Client) AuthorizeURL(provider, redirectTo, challenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "s256")
	return c.baseURL + "/auth/v1/authorize?" + q.Encode()
}

// SendMagicLink emails a one-time sign-in link that returns to redirectTo.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectTo, challenge string) error {
	body := map[string]interface{}{
		"email":                 email,
		"create_user":           true,
		"code_challenge":        challenge,
		"code_challenge_method": "s256",
	}
	endpoint := "/auth/v1/otp?redirect_to=" + url.QueryEscape(redirectTo)
	return c.do(ctx, http.MethodPost, endpoint, "", body, nil)
}

func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	var session Session
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", "", body, &session); err != nil {
		return nil, fmt.Errorf("exchange auth code failed: %w", err)
	}
	return &session, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &session); err != nil {
		return nil, fmt.Errorf("refresh session failed: %w", err)
	}
	return &session, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	return &user, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	return nil
}

// InstallSession validates a stored pair the way the hosted client's
// set_session does: refresh first when the access token has expired, then
// fetch the user; a rejected access token gets one refresh attempt. The
// returned session may carry a rotated pair.
func (c *Client) InstallSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	refreshed := false
	if c.expired(accessToken) && refreshToken != "" {
		session, err := c.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		accessToken, refreshToken = session.AccessToken, session.RefreshToken
		refreshed = true
	}

	user, err := c.GetUser(ctx, accessToken)
	if errors.Is(err, ErrUnauthorized) && !refreshed && refreshToken != "" {
		session, refreshErr := c.Refresh(ctx, refreshToken)
		if refreshErr != nil {
			return nil, refreshErr
		}
		accessToken, refreshToken = session.AccessToken, session.RefreshToken
		user, err = c.GetUser(ctx, accessToken)
	}
	if err != nil {
		return nil, err
	}

	return &Session{AccessToken: accessToken, RefreshToken: refreshToken, User: *user}, nil
}

// expired reads exp without verifying the signature; the backend does the
// real check when the token is used.
func (c *Client) expired(accessToken string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}

func (c *Client) do(ctx context.Context, method, endpoint, bearer string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal auth request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build auth request failed: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read auth response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse auth response failed: %w", err)
	}
	return nil
}

func newAPIError(status int, raw []byte) *APIError {
	var parsed struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(raw, &parsed)

	message := parsed.Msg
	for _, candidate := range []string{parsed.Message, parsed.ErrorDescription, parsed.Error} {
		if message == "" {
			message = candidate
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	apiErr := &APIError{Status: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.kind = ErrUnauthorized
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		apiErr.kind = ErrInvalidGrant
	}
	return apiErr
}
