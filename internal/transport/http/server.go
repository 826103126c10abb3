package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sentientos/internal/bootstrap"
	"sentientos/internal/transport/http/handler"
	"sentientos/internal/transport/http/middleware"
	"sentientos/web"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	if len(cfg.CORS.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.SetHTMLTemplate(web.Templates())
	router.StaticFS("/static", web.Static())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	pageHandler := handler.NewPageHandler(app.Chat, cfg.App.Name, cfg.Auth.OAuthProvider)
	authHandler := handler.NewAuthHandler(app.Auth, cfg.Auth.OAuthProvider, cfg.App.PublicURL)
	chatHandler := handler.NewChatHandler(app.Chat)

	site := router.Group("/")
	site.Use(
		middleware.BrowserSession(app.Sessions, middleware.CookieOptions{
			Name:   cfg.Auth.CookieName,
			Secret: cfg.Auth.CookieSecret,
			TTL:    time.Duration(cfg.Auth.CookieTTLHour) * time.Hour,
			Secure: cfg.App.Env == "prod" || cfg.App.Env == "production",
		}),
		middleware.AuthRecovery(app.Flow, app.Chat),
	)
	site.GET("/", pageHandler.Index)

	authGroup := site.Group("/auth")
	authGroup.POST("/oauth", authHandler.OAuth)
	authGroup.POST("/magic-link", authHandler.MagicLink)
	authGroup.POST("/signout", authHandler.SignOut)

	forms := site.Group("/", middleware.RequireUserOrHome())
	forms.POST("/chats", chatHandler.NewConversation)
	forms.POST("/chats/:id/select", chatHandler.SelectConversation)
	forms.POST("/chats/:id/delete", chatHandler.DeleteConversation)
	forms.GET("/messages/:id/download", chatHandler.Download)

	chatGroup := site.Group("/api/v1/chat", middleware.RequireUser())
	chatGroup.GET("/conversations", chatHandler.ListConversations)
	chatGroup.GET("/messages", chatHandler.Messages)
	chatGroup.POST("/turn", chatHandler.Turn)
	chatGroup.POST("/upload", chatHandler.Upload)

	return router
}
