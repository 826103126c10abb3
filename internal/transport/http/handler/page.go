package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"sentientos/internal/app"
	"sentientos/internal/render"
	"sentientos/internal/transport/http/middleware"
)

var notices = map[string]string{
	"link-sent":  "Check your inbox for the sign-in link.",
	"link-error": "Could not send the sign-in link. Try again.",
	"signin":     "Sign-in could not be started. Try again.",
}

type PageHandler struct {
	chatService *app.ChatService
	appName     string
	provider    string
}

func NewPageHandler(chatService *app.ChatService, appName, provider string) *PageHandler {
	return &PageHandler{chatService: chatService, appName: appName, provider: provider}
}

func (h *PageHandler) Index(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.HTML(http.StatusOK, "landing.html", gin.H{
			"AppName":  h.appName,
			"Provider": h.provider,
			"Notice":   notices[c.Query("notice")],
		})
		return
	}

	ctx := c.Request.Context()
	rc := middleware.RequestContext(c)
	active, err := h.chatService.EnsureActiveConversation(ctx, rc)
	if err != nil {
		log.Printf("ensure active conversation failed: %v", err)
		c.String(http.StatusServiceUnavailable, "conversation store unavailable")
		return
	}
	conversations, err := h.chatService.ListConversations(rc)
	if err != nil {
		log.Printf("list conversations failed: %v", err)
	}
	messages, err := h.chatService.Transcript(ctx, rc, active.ChatID)
	if err != nil {
		log.Printf("load transcript failed: %v", err)
	}
	views, err := render.Transcript(messages)
	if err != nil {
		log.Printf("render transcript failed: %v", err)
	}

	paymentLink := ""
	if !user.Premium {
		paymentLink = h.chatService.PaymentLink()
	}
	c.HTML(http.StatusOK, "chat.html", gin.H{
		"AppName":       h.appName,
		"User":          user,
		"Tier":          h.chatService.Tier(user),
		"Active":        active,
		"Conversations": conversations,
		"Messages":      views,
		"PaymentLink":   paymentLink,
	})
}
