package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/transport/http/middleware"
	"github.com/novacrm/auth-service/internal/usecase"
)

// ErrorResponse is the body of every failed request. Code repeats the HTTP status.
type ErrorResponse = middleware.ErrorResponse

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, status int, message string) ErrorResponse {
	return ErrorResponse{
		Code:    status,
		Message: message,
		TraceID: middleware.GetTraceID(c),
	}
}

// SuccessResponse wraps every successful payload.
type SuccessResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	Email    string  `json:"email" binding:"required,email" example:"a@x.com"`
	Password string  `json:"password" binding:"required,min=6,max=50" example:"secret1"`
	Name     *string `json:"name" binding:"omitempty,min=2" example:"Alice"`
	Phone    *string `json:"phone" binding:"omitempty,phone" example:"0912345678"`
}

// VerifyOTPRequest confirms a registration code.
type VerifyOTPRequest struct {
	Email   string `json:"email" binding:"required,email"`
	OTPCode string `json:"otpCode" binding:"required,otp" example:"123456"`
}

// EmailRequest carries a single e-mail address (resend-otp, forgot-password).
type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest represents the payload to refresh a token pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTPCode     string `json:"otpCode" binding:"required,otp"`
	NewPassword string `json:"newPassword" binding:"required,min=6,max=50"`
}

// GoogleTokenRequest carries a Google ID token obtained by a native client.
type GoogleTokenRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// ListUsersRequest holds the users listing query string.
type ListUsersRequest struct {
	Page      string `form:"page"`
	Limit     string `form:"limit"`
	Search    string `form:"search"`
	Role      string `form:"role"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}

// RegisteredUser is the public part of a fresh registration.
type RegisteredUser struct {
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

// RegisterPayload is returned by the registration endpoint.
type RegisterPayload struct {
	User RegisteredUser `json:"user"`
}

// UserPayload describes the account returned with tokens.
type UserPayload struct {
	ID     string      `json:"id"`
	Email  string      `json:"email"`
	Name   *string     `json:"name"`
	Phone  *string     `json:"phone"`
	Role   domain.Role `json:"role"`
	Avatar *string     `json:"avatar"`
}

// ProfilePayload is the sanitized account returned by profile and listing endpoints.
type ProfilePayload struct {
	UserPayload
	AuthProvider domain.Provider `json:"authProvider"`
	IsVerified   bool            `json:"isVerified"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// AuthPayload pairs the signed-in user with a fresh token pair.
type AuthPayload struct {
	User   UserPayload      `json:"user"`
	Tokens domain.TokenPair `json:"tokens"`
}

// UserListPayload is one page of the account directory.
type UserListPayload struct {
	Users      []ProfilePayload   `json:"users"`
	Pagination usecase.Pagination `json:"pagination"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newUserPayload(account domain.Account) UserPayload {
	return UserPayload{
		ID:     account.ID,
		Email:  account.Email,
		Name:   account.Name,
		Phone:  account.Phone,
		Role:   account.Role,
		Avatar: account.Avatar,
	}
}

func newProfilePayload(account domain.Account) ProfilePayload {
	return ProfilePayload{
		UserPayload:  newUserPayload(account),
		AuthProvider: account.Provider,
		IsVerified:   account.IsVerified,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}
}

func newAuthPayload(result *usecase.AuthResult) AuthPayload {
	return AuthPayload{
		User:   newUserPayload(result.Account),
		Tokens: result.Tokens,
	}
}
