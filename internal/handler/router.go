package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/vladimirov321/FitTrack/internal/service"
)

// NewRouter wires the full HTTP surface. Auth endpoints are public; /api
// routes beyond the auth group require a bearer access token.
func NewRouter(authService *service.AuthService, allowedOrigins []string) *gin.Engine {
	router := gin.Default()
	router.Use(CORSMiddleware(allowedOrigins))

	authHandler := NewAuthHandler(authService)

	router.GET("/", AuthOptional(authService), Root)
	router.GET("/ping", Ping)

	api := router.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh-token", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", AuthRequired(authService), authHandler.Me)

	return router
}
