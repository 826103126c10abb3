package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"sentientos/internal/app"
	"sentientos/internal/authflow"
	"sentientos/internal/transport/http/response"
)

// AuthRecovery settles who the caller is before any handler runs. A request
// that carried an authorization code, or whose stored session was just
// rejected, is redirected to the same URL without the code.
func AuthRecovery(flow *authflow.Flow, chat *app.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		holder := Holder(c)
		if holder == nil {
			c.Next()
			return
		}

		code := ""
		if c.Request.Method == http.MethodGet {
			code = c.Query("code")
		}
		out, err := flow.Run(c.Request.Context(), holder, code)
		if err != nil {
			log.Printf("auth recovery failed: %v", err)
			c.Next()
			return
		}

		if out.Rerender && c.Request.Method == http.MethodGet {
			c.Redirect(http.StatusSeeOther, withoutCode(c))
			c.Abort()
			return
		}

		if out.State == authflow.Authenticated && out.User != nil {
			user, err := chat.SyncProfile(out.User.Email)
			if err != nil {
				log.Printf("sync profile failed: %v", err)
			} else {
				c.Set(ContextUserKey, user)
			}
		}
		c.Next()
	}
}

// RequireUser rejects anonymous API calls.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "sign in required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireUserOrHome sends anonymous form posts back to the landing page.
func RequireUserOrHome() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.Redirect(http.StatusSeeOther, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *app.User {
	if v, ok := c.Get(ContextUserKey); ok {
		if u, ok := v.(*app.User); ok {
			return u
		}
	}
	return nil
}

// RequestContext builds the orchestrator's view of this request.
func RequestContext(c *gin.Context) *app.RequestContext {
	return &app.RequestContext{User: CurrentUser(c), Tokens: Holder(c)}
}

func withoutCode(c *gin.Context) string {
	u := *c.Request.URL
	q := u.Query()
	q.Del("code")
	u.RawQuery = q.Encode()
	return u.RequestURI()
}
