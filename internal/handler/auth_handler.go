package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/service"
	"github.com/imaad666/W-Chhatt/pkg/log"
	"github.com/imaad666/W-Chhatt/pkg/middleware"
	"github.com/imaad666/W-Chhatt/pkg/response"
)

// AuthHandler handles account HTTP requests.
type AuthHandler struct {
	accountService service.AccountService
	authMiddleware *middleware.AuthMiddleware
}

// NewAuthHandler creates a new account handler.
func NewAuthHandler(accountService service.AccountService, authMiddleware *middleware.AuthMiddleware) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *AuthHandler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// Public routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
			auth.POST("/refresh", h.RefreshToken)
			auth.POST("/logout", h.authMiddleware.RequireAuth(), h.Logout)
			auth.GET("/me", h.authMiddleware.RequireAuth(), h.Me)
		}

		// Protected routes
		users := api.Group("/users")
		users.Use(h.authMiddleware.RequireAuth())
		{
			users.GET("/search", h.SearchUsers)
		}
	}
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BindError(c, err)
		return
	}

	result, err := h.accountService.Register(ctx, &req)
	if err != nil {
		if writeFieldError(c, err) {
			return
		}
		if errors.Is(err, service.ErrEmailExists) {
			response.Conflict(c, "email already exists")
			return
		}
		if errors.Is(err, service.ErrUsernameExists) {
			response.Conflict(c, "username already exists")
			return
		}
		l.Error().Err(err).Msg("register failed")
		response.InternalError(c, "failed to register user")
		return
	}

	response.Created(c, result)
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BindError(c, err)
		return
	}

	result, err := h.accountService.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid username or password")
			return
		}
		l.Error().Err(err).Msg("login failed")
		response.InternalError(c, "failed to login")
		return
	}

	response.Success(c, result)
}

// RefreshToken handles token refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid refresh token request")
		response.BindError(c, err)
		return
	}

	result, err := h.accountService.RefreshToken(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "invalid or expired refresh token")
			return
		}
		l.Error().Err(err).Msg("refresh token failed")
		response.InternalError(c, "failed to refresh token")
		return
	}

	response.Success(c, result)
}

// Logout revokes the caller's tokens.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if err := h.accountService.Logout(ctx, userID); err != nil {
		l.Error().Err(err).Msg("logout failed")
		response.InternalError(c, "failed to logout")
		return
	}

	response.Success(c, gin.H{"message": "logged out"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	user, err := h.accountService.Me(ctx, userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		l.Error().Err(err).Msg("failed to get current user")
		response.InternalError(c, "failed to get user")
		return
	}

	response.Success(c, user)
}

// SearchUsers finds users by username fragment.
func (h *AuthHandler) SearchUsers(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SearchUsersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BindError(c, err)
		return
	}

	users, err := h.accountService.SearchUsers(ctx, req.Keyword)
	if err != nil {
		l.Error().Err(err).Msg("failed to search users")
		response.InternalError(c, "failed to search users")
		return
	}

	response.Success(c, users)
}
