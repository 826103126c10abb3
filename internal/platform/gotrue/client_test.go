package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type fakeBackend struct {
	t          *testing.T
	validToken string
	refreshes  int
	lastBody   map[string]interface{}
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body := map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastBody = body
		switch r.URL.Query().Get("grant_type") {
		case "pkce":
			if body["auth_code"] != "good-code" || body["code_verifier"] != "verifier" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already used"}`))
				return
			}
		case "refresh_token":
			if body["refresh_token"] != "refresh-1" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"msg":"Invalid Refresh Token"}`))
				return
			}
			f.refreshes++
		}
		f.validToken = signedToken(f.t, time.Now().Add(time.Hour))
		_ = json.NewEncoder(w).Encode(Session{
			AccessToken:  f.validToken,
			RefreshToken: "refresh-2",
			ExpiresIn:    3600,
			User:         User{ID: "user-1", Email: "ops@example.com"},
		})
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.validToken || f.validToken == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(User{ID: "user-1", Email: "ops@example.com"})
	})
	mux.HandleFunc("/auth/v1/otp", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastBody = body
		if r.URL.Query().Get("redirect_to") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{t: t}
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", "anon-key"), backend
}

func TestAuthorizeURL(t *testing.T) {
	client := NewClient("https://project.supabase.co/", "anon-key")
	verifier, challenge := NewVerifier()
	if verifier == "" || challenge == "" || verifier == challenge {
		t.Fatalf("unexpected verifier/challenge %q %q", verifier, challenge)
	}

	raw := client.AuthorizeURL("github", "https://app.example/", challenge)
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Path != "/auth/v1/authorize" {
		t.Fatalf("unexpected path %q", parsed.Path)
	}
	q := parsed.Query()
	if q.Get("provider") != "github" || q.Get("redirect_to") != "https://app.example/" ||
		q.Get("code_challenge") != challenge || q.Get("code_challenge_method") != "s256" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestExchangeCode(t *testing.T) {
	client, _ := newTestClient(t)

	session, err := client.ExchangeCode(context.Background(), "good-code", "verifier")
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if session.User.Email != "ops@example.com" || session.RefreshToken != "refresh-2" {
		t.Fatalf("unexpected session %+v", session)
	}

	_, err = client.ExchangeCode(context.Background(), "stale-code", "verifier")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected invalid grant, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Message, "code already used") {
		t.Fatalf("expected backend message in error, got %v", err)
	}
}

func TestInstallSessionValidToken(t *testing.T) {
	client, backend := newTestClient(t)
	backend.validToken = signedToken(t, time.Now().Add(time.Hour))

	session, err := client.InstallSession(context.Background(), backend.validToken, "refresh-1")
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if session.User.Email != "ops@example.com" || backend.refreshes != 0 {
		t.Fatalf("unexpected session %+v refreshes=%d", session, backend.refreshes)
	}
	if session.RefreshToken != "refresh-1" {
		t.Fatalf("pair must be unchanged without refresh")
	}
}

func TestInstallSessionRefreshesExpiredToken(t *testing.T) {
	client, backend := newTestClient(t)
	expired := signedToken(t, time.Now().Add(-time.Minute))

	session, err := client.InstallSession(context.Background(), expired, "refresh-1")
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if backend.refreshes != 1 {
		t.Fatalf("expected one refresh, got %d", backend.refreshes)
	}
	if session.AccessToken == expired || session.RefreshToken != "refresh-2" {
		t.Fatalf("expected rotated pair, got %+v", session)
	}
}

func TestInstallSessionRefreshesAfterRejection(t *testing.T) {
	client, backend := newTestClient(t)
	revoked := signedToken(t, time.Now().Add(time.Hour))

	session, err := client.InstallSession(context.Background(), revoked, "refresh-1")
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if backend.refreshes != 1 || session.User.Email != "ops@example.com" {
		t.Fatalf("expected recovery through refresh, refreshes=%d", backend.refreshes)
	}
}

func TestInstallSessionRejected(t *testing.T) {
	client, _ := newTestClient(t)
	expired := signedToken(t, time.Now().Add(-time.Minute))

	_, err := client.InstallSession(context.Background(), expired, "revoked-refresh")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected invalid grant, got %v", err)
	}

	_, err = client.InstallSession(context.Background(), "not-a-jwt", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestSendMagicLinkAndSignOut(t *testing.T) {
	client, backend := newTestClient(t)
	_, challenge := NewVerifier()

	if err := client.SendMagicLink(context.Background(), "ops@example.com", "https://app.example/", challenge); err != nil {
		t.Fatalf("send magic link failed: %v", err)
	}
	if backend.lastBody["email"] != "ops@example.com" || backend.lastBody["code_challenge"] != challenge {
		t.Fatalf("unexpected otp body %v", backend.lastBody)
	}
	if err := client.SignOut(context.Background(), "token"); err != nil {
		t.Fatalf("sign out failed: %v", err)
	}
}
