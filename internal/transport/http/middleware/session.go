package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sentientos/internal/pkg/jwtutil"
	"sentientos/internal/session"
)

const (
	ContextHolderKey = "session_holder"
	ContextUserKey   = "user"
)

type CookieOptions struct {
	Name   string
	Secret string
	TTL    time.Duration
	Secure bool
}

// BrowserSession binds each request to a browser session id carried in a
// signed cookie and exposes that session's holder. A missing or invalid
// cookie starts a new session.
func BrowserSession(store session.Store, opts CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := ""
		if raw, err := c.Cookie(opts.Name); err == nil && raw != "" {
			if claims, err := jwtutil.ParseToken(opts.Secret, raw); err == nil {
				sessionID = claims.SessionID
			}
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
			token, err := jwtutil.GenerateToken(opts.Secret, opts.TTL, sessionID)
			if err != nil {
				log.Printf("sign session cookie failed: %v", err)
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(opts.Name, token, int(opts.TTL.Seconds()), "/", "", opts.Secure, true)
		}

		c.Set(ContextHolderKey, store.Scope(sessionID))
		c.Next()
	}
}

// Holder returns the request's session holder.
func Holder(c *gin.Context) session.Holder {
	if v, ok := c.Get(ContextHolderKey); ok {
		if h, ok := v.(session.Holder); ok {
			return h
		}
	}
	return nil
}
