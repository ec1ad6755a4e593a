package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/transport/http/middleware"
	"github.com/novacrm/auth-service/internal/usecase"
)

// AuthHandler exposes the registration, verification, login and password reset endpoints.
type AuthHandler struct {
	auth   *usecase.AuthService
	logger *zap.Logger
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: auth, logger: logger}
}

// Register godoc
// @Summary Register a new account
// @Description Creates an unverified local account, or refreshes a pending one, and e-mails a 6-digit code.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration payload"
// @Success 201 {object} SuccessResponse{data=RegisterPayload}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	result, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusCreated, result.Message, RegisterPayload{
		User: RegisteredUser{Email: result.Email, Name: result.Name},
	})
}

// VerifyOTP godoc
// @Summary Verify a registration code
// @Description Marks the account verified and returns a token pair.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "Verification payload"
// @Success 200 {object} SuccessResponse{data=AuthPayload}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	result, err := h.auth.VerifyOTP(c.Request.Context(), req.Email, req.OTPCode)
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Verification successful", newAuthPayload(result))
}

// ResendOTP godoc
// @Summary Resend a registration code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body EmailRequest true "Account e-mail"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/auth/resend-otp [post]
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	message, err := h.auth.ResendOTP(c.Request.Context(), req.Email)
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, message, nil)
}

// Login godoc
// @Summary Authenticate with e-mail and password
// @Description Every credential failure answers with the same 401 message.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} SuccessResponse{data=AuthPayload}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Login successful", newAuthPayload(result))
}

// RefreshToken godoc
// @Summary Refresh a token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "Refresh token"
// @Success 200 {object} SuccessResponse{data=domain.TokenPair}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	tokens, err := h.auth.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Token refreshed successfully", tokens)
}

// Profile godoc
// @Summary Current account profile
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SuccessResponse{data=ProfilePayload}
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/auth/profile [get]
func (h *AuthHandler) Profile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, http.StatusUnauthorized, "authentication required"))
		return
	}

	account, err := h.auth.GetProfile(c.Request.Context(), userID)
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Profile retrieved successfully", newProfilePayload(*account))
}

// ForgotPassword godoc
// @Summary Request a password reset code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body EmailRequest true "Account e-mail"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	message, err := h.auth.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, message, nil)
}

// ResetPassword godoc
// @Summary Reset a password with an e-mailed code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset payload"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	message, err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.OTPCode, req.NewPassword)
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, message, nil)
}
