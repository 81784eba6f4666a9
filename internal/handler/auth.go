package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vladimirov321/FitTrack/internal/model"
	"github.com/vladimirov321/FitTrack/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register godoc
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.AuthRequest true "Email and password"
// @Success 201 {object} model.RegisterResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "Email and password required"})
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.RegisterResponse{
		ID:    user.ID,
		Email: user.Email,
	})
}

// Login godoc
// @Summary Login
// @Description Returns an access token and sets the refreshToken cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.AuthRequest true "Email and password"
// @Success 200 {object} model.AuthResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "Email and password required"})
		return
	}

	session, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken)
	c.JSON(http.StatusOK, model.AuthResponse{
		AccessToken: session.AccessToken,
		ExpiresIn:   session.ExpiresIn,
	})
}

// Refresh godoc
// @Summary Refresh access token
// @Description Consumes the refreshToken cookie and rotates it.
// @Tags auth
// @Produce json
// @Success 200 {object} model.AuthResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/auth/refresh-token [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, _ := c.Cookie(h.svc.CookieConfig().Name)
	session, err := h.svc.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken)
	c.JSON(http.StatusOK, model.AuthResponse{
		AccessToken: session.AccessToken,
		ExpiresIn:   session.ExpiresIn,
	})
}

// Logout godoc
// @Summary Logout
// @Description Revokes the refresh token (if present) and clears the cookie.
// @Tags auth
// @Success 204
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(h.svc.CookieConfig().Name)
	_ = h.svc.Logout(c.Request.Context(), refreshToken)
	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AuthMeResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: "Access token required"})
		return
	}
	c.JSON(http.StatusOK, model.AuthMeResponse{
		UserID: user.ID,
		Email:  user.Email,
	})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, token, cfg.MaxAge, cfg.Path, cfg.Domain, cfg.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
}

func writeAuthError(c *gin.Context, err error) {
	switch err {
	case service.ErrMissingCredentials:
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "Email and password required"})
	case service.ErrInvalidEmail:
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "Invalid email format"})
	case service.ErrShortPassword:
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "Password must be at least 6 characters"})
	case service.ErrInvalidCredentials:
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: "Invalid credentials"})
	case service.ErrConflict:
		c.JSON(http.StatusConflict, model.ErrorResponse{Message: "Email already in use"})
	case service.ErrInvalidRefreshToken:
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Message: "Invalid or expired refresh token"})
	case service.ErrUserNotFound:
		c.JSON(http.StatusNotFound, model.ErrorResponse{Message: "User not found"})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Message: "Internal server error"})
	}
}
