package authflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"sentientos/internal/platform/gotrue"
	"sentientos/internal/session"
)

var ErrMissingVerifier = errors.New("no pending sign-in for this browser session")

// Authenticator is the slice of the auth backend the flow needs.
type Authenticator interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*gotrue.Session, error)
	InstallSession(ctx context.Context, accessToken, refreshToken string) (*gotrue.Session, error)
}

// Outcome is what the transport acts on.
type Outcome struct {
	State State
	User  *Identity
	// StripCode and Rerender together mean: redirect to the same URL
	// without the code parameter.
	StripCode  bool
	Rerender   bool
	Diagnostic error
}

type Flow struct {
	auth Authenticator
}

func NewFlow(auth Authenticator) *Flow {
	return &Flow{auth: auth}
}

// Run resolves one request. Holder failures are reported as errors; backend
// rejections are not, they only land in Outcome.Diagnostic.
func (f *Flow) Run(ctx context.Context, holder session.Holder, code string) (Outcome, error) {
	stored, err := session.LoadPair(ctx, holder)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	m, pending := Reduce(Machine{}, Started{Code: code, Stored: stored})
	for len(pending) > 0 {
		eff := pending[0]
		pending = pending[1:]

		ev, err := f.execute(ctx, holder, eff, &out)
		if err != nil {
			return Outcome{}, err
		}
		if ev == nil {
			continue
		}
		var next []Effect
		m, next = Reduce(m, ev)
		pending = append(pending, next...)
	}

	out.State = m.State
	out.User = m.User
	return out, nil
}

func (f *Flow) execute(ctx context.Context, holder session.Holder, eff Effect, out *Outcome) (Event, error) {
	switch e := eff.(type) {
	case ExchangeCode:
		verifier, ok, err := holder.Get(ctx, session.KeyPKCEVerifier)
		if err != nil {
			return nil, fmt.Errorf("load pkce verifier failed: %w", err)
		}
		if !ok {
			return ExchangeFailed{Err: ErrMissingVerifier}, nil
		}
		grant, err := f.auth.ExchangeCode(ctx, e.Code, verifier)
		if err != nil {
			return ExchangeFailed{Err: err}, nil
		}
		if err := holder.Remove(ctx, session.KeyPKCEVerifier); err != nil {
			return nil, fmt.Errorf("remove pkce verifier failed: %w", err)
		}
		return ExchangeSucceeded{
			User: Identity{ID: grant.User.ID, Email: grant.User.Email},
			Pair: session.TokenPair{
				AccessToken:  grant.AccessToken,
				RefreshToken: grant.RefreshToken,
			},
		}, nil

	case InstallSession:
		installed, err := f.auth.InstallSession(ctx, e.Pair.AccessToken, e.Pair.RefreshToken)
		if err != nil {
			return SessionRejected{Err: err}, nil
		}
		return SessionInstalled{
			User: Identity{ID: installed.User.ID, Email: installed.User.Email},
			Pair: session.TokenPair{
				AccessToken:  installed.AccessToken,
				RefreshToken: installed.RefreshToken,
			},
		}, nil

	case StorePair:
		return nil, session.StorePair(ctx, holder, e.Pair)

	case ClearPair:
		return nil, session.ClearPair(ctx, holder)

	case StripCode:
		out.StripCode = true
	case Rerender:
		out.Rerender = true
	case Diagnose:
		out.Diagnostic = e.Err
		log.Printf("auth recovery: %v", e.Err)
	}
	return nil, nil
}
