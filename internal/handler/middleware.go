package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vladimirov321/FitTrack/internal/model"
	"github.com/vladimirov321/FitTrack/internal/service"
)

const authUserKey = "auth_user"

// AuthRequired rejects requests without a valid bearer access token and
// attaches the verified identity to the request context. Expired and
// malformed tokens get distinguishable messages; both are diagnostic, not an
// enumeration risk.
func AuthRequired(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: "Access token required"})
			c.Abort()
			return
		}

		user, err := authService.ParseAccessToken(token)
		if err != nil {
			switch err {
			case service.ErrTokenExpired:
				c.JSON(http.StatusForbidden, model.ErrorResponse{Message: "Token expired"})
			default:
				c.JSON(http.StatusForbidden, model.ErrorResponse{Message: "Invalid token"})
			}
			c.Abort()
			return
		}

		c.Set(authUserKey, user)
		c.Next()
	}
}

// AuthOptional attaches an identity when a valid bearer token is present and
// otherwise lets the request through untouched. It never blocks.
func AuthOptional(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token != "" {
			if user, err := authService.ParseAccessToken(token); err == nil {
				c.Set(authUserKey, user)
			}
		}
		c.Next()
	}
}

// GetAuthUser returns the identity attached by AuthRequired/AuthOptional, or
// nil when the request was not authenticated.
func GetAuthUser(c *gin.Context) *model.AuthUser {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.AuthUser); ok {
			return user
		}
	}
	return nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				// Credentials must be allowed so the refresh cookie flows.
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
