package app

import (
	"sentientos/internal/session"
)

// User is the authenticated operator of one request.
type User struct {
	Email   string
	Premium bool
}

// RequestContext carries what one request knows about its caller: the
// identity settled by the auth flow, the conversation the browser is
// focused on, and the browser session's holder. Operations update
// ActiveChatID in place so later calls in the same request agree.
type RequestContext struct {
	User         *User
	ActiveChatID string
	Tokens       session.Holder
}

func (rc *RequestContext) email() (string, error) {
	if rc == nil || rc.User == nil || rc.User.Email == "" {
		return "", ErrUnauthenticated
	}
	return rc.User.Email, nil
}
