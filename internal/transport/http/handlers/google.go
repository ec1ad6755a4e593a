package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/usecase"
)

const googleFailureCode = "google_auth_failed"

// GoogleHandler runs the browser redirect flow and the native ID-token login.
type GoogleHandler struct {
	google      *usecase.GoogleService
	frontendURL string
	logger      *zap.Logger
}

func NewGoogleHandler(google *usecase.GoogleService, frontendURL string, logger *zap.Logger) *GoogleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleHandler{
		google:      google,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// Begin godoc
// @Summary Start Google sign-in
// @Description Redirects to the Google consent screen with a single-use state.
// @Tags Google
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/auth/google [get]
func (h *GoogleHandler) Begin(c *gin.Context) {
	consentURL, err := h.google.BeginAuth()
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}
	c.Redirect(http.StatusFound, consentURL)
}

// Callback godoc
// @Summary Google sign-in callback
// @Description Exchanges the code and redirects to the frontend with tokens, or with an error code.
// @Tags Google
// @Param code query string true "Authorization code"
// @Param state query string true "State issued by /auth/google"
// @Success 302
// @Router /api/v1/auth/google/callback [get]
func (h *GoogleHandler) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		h.logger.Info("google consent denied", zap.String("error", errParam))
		h.redirectFailure(c)
		return
	}

	result, err := h.google.CompleteAuth(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		if errors.Is(err, usecase.ErrFederationDisabled) {
			RespondWithError(c, h.logger, err)
			return
		}
		if usecase.KindOf(err) == usecase.KindInternal {
			h.logger.Error("google callback failed", zap.Error(err))
		}
		h.redirectFailure(c)
		return
	}

	query := url.Values{}
	query.Set("accessToken", result.Tokens.AccessToken)
	query.Set("refreshToken", result.Tokens.RefreshToken)
	c.Redirect(http.StatusFound, h.frontendURL+"/auth/callback?"+query.Encode())
}

func (h *GoogleHandler) redirectFailure(c *gin.Context) {
	c.Redirect(http.StatusFound, h.frontendURL+"/login?error="+googleFailureCode)
}

// TokenLogin godoc
// @Summary Sign in with a Google ID token
// @Description For native clients that already hold an ID token.
// @Tags Google
// @Accept json
// @Produce json
// @Param request body GoogleTokenRequest true "ID token"
// @Success 200 {object} SuccessResponse{data=AuthPayload}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/auth/google/token [post]
func (h *GoogleHandler) TokenLogin(c *gin.Context) {
	var req GoogleTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	result, err := h.google.LoginWithIDToken(c.Request.Context(), req.IDToken)
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, "Login successful", newAuthPayload(result))
}
