package auth

import (
	"net/http"
	"time"

	"campus-marketplace/internal/commands"
	"campus-marketplace/internal/domain"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	service *Service
	google  *GoogleOAuth
	logger  *zap.Logger
}

// NewAuthHandler creates a new auth handler; google may be nil
func NewAuthHandler(service *Service, google *GoogleOAuth, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		google:  google,
		logger:  logger,
	}
}

// SignupRequest represents a local account registration
type SignupRequest struct {
	Email       string `json:"email" binding:"required" example:"alex@campus.edu"`
	Username    string `json:"username" binding:"required" example:"alex"`
	DisplayName string `json:"display_name" example:"Alex Kim"`
	Password    string `json:"password" binding:"required" example:"correct-horse"`
}

// LoginRequest represents the login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"alex@campus.edu"`
	Password string `json:"password" binding:"required" example:"correct-horse"`
}

// EmailRequest carries just an address
type EmailRequest struct {
	Email string `json:"email" binding:"required" example:"alex@campus.edu"`
}

// ResetPasswordRequest carries a reset token and the new password
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenRequest carries a one-time token
type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UserResponse is the private view of an account
type UserResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	Bio           string    `json:"bio"`
	EmailVerified bool      `json:"email_verified"`
	OAuthProvider string    `json:"oauth_provider,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string       `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	Type      string       `json:"type" example:"Bearer"`
	ExpiresIn int          `json:"expires_in" example:"86400"`
	ExpiresAt time.Time    `json:"expires_at" example:"2024-01-15T12:00:00Z"`
	User      UserResponse `json:"user"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

// NewUserResponse maps an account to its private view
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Username:      user.Username,
		DisplayName:   user.DisplayName,
		Bio:           user.Bio,
		EmailVerified: user.EmailVerified,
		OAuthProvider: user.OAuthProvider,
		AvatarURL:     user.AvatarRef,
		CreatedAt:     user.CreatedAt,
	}
}

func newLoginResponse(user *domain.User, session *Session) LoginResponse {
	return LoginResponse{
		Token:     session.Token,
		Type:      "Bearer",
		ExpiresIn: int(time.Until(session.ExpiresAt).Seconds()),
		ExpiresAt: session.ExpiresAt,
		User:      NewUserResponse(user),
	}
}

// Signup handles POST /api/v1/auth/signup
// @Summary      Create an account
// @Description  Registers a local account (password of at least 8 characters), mails a verification link and returns a token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      SignupRequest  true  "Account details"
// @Success      201      {object}  LoginResponse
// @Failure      400      {object}  errors.StandardError  "Invalid email, username or password"
// @Failure      409      {object}  errors.StandardError  "Email already registered"
// @Failure      429      {object}  errors.StandardError  "Too many requests"
// @Router       /auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid signup request", zap.Error(err))
		c.Error(errors.NewInvalidRequest("invalid request", err.Error()))
		c.Abort()
		return
	}

	user, session, err := h.service.Signup(c.Request.Context(), commands.SignupCommand{
		Email:       req.Email,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, newLoginResponse(user, session))
}

// Login handles POST /api/v1/auth/login
// @Summary      Login and get JWT token
// @Description  Authenticates with email and password and returns a bearer token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Login credentials"
// @Success      200      {object}  LoginResponse  "Token generated"
// @Failure      400      {object}  errors.StandardError  "Missing credentials"
// @Failure      401      {object}  errors.StandardError  "Invalid credentials"
// @Failure      429      {object}  errors.StandardError  "Too many requests"
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid login request", zap.Error(err))
		c.Error(errors.NewValidationError("invalid request", "email or password"))
		c.Abort()
		return
	}

	user, session, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(user, session))
}

// Logout handles POST /api/v1/auth/logout
// @Summary      Revoke the current token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  MessageResponse
// @Failure      401  {object}  errors.StandardError
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.Error(errors.NewUnauthorized("authentication required", ""))
		c.Abort()
		return
	}
	if err := h.service.Logout(c.Request.Context(), claims); err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
// @Summary      Request a password reset link
// @Description  Always answers 200 so the endpoint does not reveal which emails are registered.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      EmailRequest  true  "Account email"
// @Success      200      {object}  MessageResponse
// @Failure      429      {object}  errors.StandardError  "Too many requests"
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("email is required", "email"))
		c.Abort()
		return
	}
	if err := h.service.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("Failed to process password reset", zap.Error(err))
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "if the account exists, a reset link has been sent"})
}

// ResetPassword handles POST /api/v1/auth/reset-password
// @Summary      Set a new password with a reset token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      ResetPasswordRequest  true  "Token and new password"
// @Success      200      {object}  MessageResponse
// @Failure      400      {object}  errors.StandardError  "Invalid or expired token, or weak password"
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidRequest("invalid request", err.Error()))
		c.Abort()
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

// VerifyEmail handles POST /api/v1/auth/verify-email
// @Summary      Confirm an email address
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      TokenRequest  true  "Verification token"
// @Success      200      {object}  UserResponse
// @Failure      400      {object}  errors.StandardError  "Invalid or expired token"
// @Router       /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewValidationError("token is required", "token"))
		c.Abort()
		return
	}
	user, err := h.service.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(user))
}

// ResendVerification handles POST /api/v1/auth/resend-verification
// @Summary      Mail a new verification link
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  MessageResponse
// @Failure      401  {object}  errors.StandardError
// @Failure      409  {object}  errors.StandardError  "Already verified"
// @Router       /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorized("authentication required", ""))
		c.Abort()
		return
	}
	if err := h.service.ResendVerification(c.Request.Context(), userID); err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "verification email sent"})
}

// Me handles GET /api/v1/auth/me
// @Summary      Current account
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  UserResponse
// @Failure      401  {object}  errors.StandardError
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorized("authentication required", ""))
		c.Abort()
		return
	}
	user, err := h.service.Me(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(user))
}

// GoogleLogin handles GET /api/v1/auth/oauth/google
// @Summary      Start Google sign-in
// @Tags         auth
// @Success      302
// @Failure      503  {object}  errors.StandardError  "Google sign-in not configured"
// @Router       /auth/oauth/google [get]
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	url, err := h.google.AuthURL(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	c.Redirect(http.StatusFound, url)
}

// GoogleCallback handles GET /api/v1/auth/oauth/google/callback
// @Summary      Finish Google sign-in
// @Tags         auth
// @Produce      json
// @Param        state  query     string  true  "OAuth state"
// @Param        code   query     string  true  "Authorization code"
// @Success      200    {object}  LoginResponse
// @Failure      401    {object}  errors.StandardError  "Invalid state or code"
// @Failure      409    {object}  errors.StandardError  "Email registered with a password"
// @Router       /auth/oauth/google/callback [get]
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	info, err := h.google.Exchange(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	user, session, err := h.service.OAuthLogin(c.Request.Context(), info)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, newLoginResponse(user, session))
}
