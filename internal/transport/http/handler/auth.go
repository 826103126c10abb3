package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sentientos/internal/platform/gotrue"
	"sentientos/internal/session"
	"sentientos/internal/transport/http/middleware"
)

type AuthHandler struct {
	auth       *gotrue.Client
	provider   string
	redirectTo string
}

type MagicLinkRequest struct {
	Email string `form:"email" binding:"required,email,max=255"`
}

func NewAuthHandler(auth *gotrue.Client, provider, redirectTo string) *AuthHandler {
	return &AuthHandler{auth: auth, provider: provider, redirectTo: redirectTo}
}

// OAuth starts a PKCE sign-in with the configured provider. The verifier
// waits in the browser session for the code to come back.
func (h *AuthHandler) OAuth(c *gin.Context) {
	holder := middleware.Holder(c)
	verifier, challenge := gotrue.NewVerifier()
	if err := holder.Put(c.Request.Context(), session.KeyPKCEVerifier, verifier); err != nil {
		log.Printf("store pkce verifier failed: %v", err)
		c.Redirect(http.StatusSeeOther, "/?notice=signin")
		return
	}
	c.Redirect(http.StatusSeeOther, h.auth.AuthorizeURL(h.provider, h.redirectTo, challenge))
}

func (h *AuthHandler) MagicLink(c *gin.Context) {
	var req MagicLinkRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Redirect(http.StatusSeeOther, "/?notice=link-error")
		return
	}

	ctx := c.Request.Context()
	holder := middleware.Holder(c)
	verifier, challenge := gotrue.NewVerifier()
	if err := holder.Put(ctx, session.KeyPKCEVerifier, verifier); err != nil {
		log.Printf("store pkce verifier failed: %v", err)
		c.Redirect(http.StatusSeeOther, "/?notice=link-error")
		return
	}
	if err := h.auth.SendMagicLink(ctx, strings.TrimSpace(req.Email), h.redirectTo, challenge); err != nil {
		log.Printf("send magic link failed: %v", err)
		c.Redirect(http.StatusSeeOther, "/?notice=link-error")
		return
	}
	c.Redirect(http.StatusSeeOther, "/?notice=link-sent")
}

// SignOut revokes the session upstream and forgets it locally. Upstream
// failure does not keep the browser signed in.
func (h *AuthHandler) SignOut(c *gin.Context) {
	ctx := c.Request.Context()
	holder := middleware.Holder(c)
	if pair, err := session.LoadPair(ctx, holder); err == nil && pair != nil {
		if err := h.auth.SignOut(ctx, pair.AccessToken); err != nil {
			log.Printf("sign out failed: %v", err)
		}
	}
	if err := session.ClearPair(ctx, holder); err != nil {
		log.Printf("clear token pair failed: %v", err)
	}
	_ = holder.Remove(ctx, session.KeyActiveChat)
	c.Redirect(http.StatusSeeOther, "/")
}
