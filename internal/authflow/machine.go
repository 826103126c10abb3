// Package authflow reconciles an inbound authorization code, a possibly
// stale stored token pair and the current request into a definite outcome:
// authenticated as a user, or anonymous.
//
// Reduce is pure. Run drives it by executing the effects it asks for and
// feeding their results back as events.
package authflow

import (
	"sentientos/internal/session"
)

type State int

const (
	NoSession State = iota
	Exchanging
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "NO_SESSION"
	case Exchanging:
		return "EXCHANGING"
	case Authenticated:
		return "AUTHENTICATED"
	case Expired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

type Identity struct {
	ID    string
	Email string
}

// Machine is the flow's state for one request.
type Machine struct {
	State State
	User  *Identity
	// Stored is the pair found in the holder when the request started.
	Stored *session.TokenPair
}

type Event interface{ event() }

// Started opens every request.
type Started struct {
	Code   string
	Stored *session.TokenPair
}

type ExchangeSucceeded struct {
	User Identity
	Pair session.TokenPair
}
type ExchangeFailed struct{ Err error }

type SessionInstalled struct {
	User Identity
	Pair session.TokenPair
}

type SessionRejected struct{ Err error }

func (Started) event()           {}
func (ExchangeSucceeded) event() {}
func (ExchangeFailed) event()    {}
func (SessionInstalled) event()  {}
func (SessionRejected) event()   {}

type Effect interface{ effect() }

type ExchangeCode struct{ Code string }
type InstallSession struct{ Pair session.TokenPair }
type StorePair struct{ Pair session.TokenPair }
type ClearPair struct{}

// StripCode removes the consumed code from the visible request state.
type StripCode struct{}

// Rerender asks for a fresh pass over the request.
type Rerender struct{}

// Diagnose records a backend error without surfacing it to the user.
type Diagnose struct{ Err error }

func (ExchangeCode) effect()   {}
func (InstallSession) effect() {}
func (StorePair) effect()      {}
func (ClearPair) effect()      {}
func (StripCode) effect()      {}
func (Rerender) effect()       {}
func (Diagnose) effect()       {}

// Reduce applies ev to m. Unknown or out-of-order events leave m unchanged.
func Reduce(m Machine, ev Event) (Machine, []Effect) {
	switch e := ev.(type) {
	case Started:
		m = Machine{State: NoSession, Stored: e.Stored}
		if e.Code != "" {
			m.State = Exchanging
			return m, []Effect{ExchangeCode{Code: e.Code}}
		}
		if e.Stored != nil {
			return m, []Effect{InstallSession{Pair: *e.Stored}}
		}
		return m, nil

	case ExchangeSucceeded:
		if m.State != Exchanging {
			return m, nil
		}
		user := e.User
		m.State = Authenticated
		m.User = &user
		m.Stored = &e.Pair
		return m, []Effect{StorePair{Pair: e.Pair}, StripCode{}, Rerender{}}

	case ExchangeFailed:
		if m.State != Exchanging {
			return m, nil
		}
		// The code is dropped either way; an older stored pair gets its
		// chance on the fresh pass.
		m.State = NoSession
		return m, []Effect{Diagnose{Err: e.Err}, StripCode{}, Rerender{}}

	case SessionInstalled:
		if m.Stored == nil {
			return m, nil
		}
		user := e.User
		m.State = Authenticated
		m.User = &user
		if e.Pair != *m.Stored {
			m.Stored = &e.Pair
			return m, []Effect{StorePair{Pair: e.Pair}}
		}
		return m, nil

	case SessionRejected:
		if m.Stored == nil {
			return m, nil
		}
		m.State = Expired
		m.User = nil
		m.Stored = nil
		return m, []Effect{Diagnose{Err: e.Err}, ClearPair{}, Rerender{}}
	}
	return m, nil
}
