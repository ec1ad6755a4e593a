package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/transport/http/middleware"
	"github.com/novacrm/auth-service/internal/usecase"
)

// UserHandler serves the account directory and the caller's own profile.
type UserHandler struct {
	users  *usecase.UserService
	auth   *usecase.AuthService
	logger *zap.Logger
}

func NewUserHandler(users *usecase.UserService, auth *usecase.AuthService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{users: users, auth: auth, logger: logger}
}

// List godoc
// @Summary List accounts
// @Description Paginated account directory, restricted to ADMIN and SALES.
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size (max 100)" default(10)
// @Param search query string false "Substring of name, email or phone"
// @Param role query string false "USER, SALES or ADMIN"
// @Param sortBy query string false "createdAt, updatedAt, email or name"
// @Param sortOrder query string false "asc or desc"
// @Success 200 {object} SuccessResponse{data=UserListPayload}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/users [get]
func (h *UserHandler) List(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, http.StatusUnauthorized, "authentication required"))
		return
	}

	var req ListUsersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBadRequest(c, "invalid query parameters")
		return
	}

	page, ok := parseOptionalInt(req.Page)
	if !ok {
		respondBadRequest(c, "page must be a number")
		return
	}
	limit, ok := parseOptionalInt(req.Limit)
	if !ok {
		respondBadRequest(c, "limit must be a number")
		return
	}

	result, err := h.users.List(c.Request.Context(), claims, usecase.ListUsersQuery{
		Page:      page,
		Limit:     limit,
		Search:    req.Search,
		Role:      req.Role,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		RespondWithError(c, h.logger, err)
		return
	}

	users := make([]ProfilePayload, 0, len(result.Users))
	for _, account := range result.Users {
		users = append(users, newProfilePayload(account))
	}

	respondOK(c, http.StatusOK, "Get users successfully", UserListPayload{
		Users:      users,
		Pagination: result.Pagination,
	})
}

// Profile godoc
// @Summary Current account profile
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SuccessResponse{data=ProfilePayload}
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/profile [get]
func (h *UserHandler) Profile(c *gin.Context) {
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

	respondOK(c, http.StatusOK, "Get profile successfully", newProfilePayload(*account))
}

func parseOptionalInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
