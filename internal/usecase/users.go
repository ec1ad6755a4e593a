package usecase

import (
	"context"
	"strings"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
)

// ListUsersQuery is the raw listing request after transport-level parsing.
type ListUsersQuery struct {
	Page      int
	Limit     int
	Search    string
	Role      string
	SortBy    string
	SortOrder string
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type UserPage struct {
	Users      []domain.Account
	Pagination Pagination
}

// UserService serves the staff-only account directory.
type UserService struct {
	accounts port.AccountRepository
}

func NewUserService(accounts port.AccountRepository) *UserService {
	return &UserService{accounts: accounts}
}

// CanListUsers reports whether role may browse the account directory.
func CanListUsers(role domain.Role) bool {
	return role == domain.RoleAdmin || role == domain.RoleSales
}

func (s *UserService) List(ctx context.Context, actor domain.TokenClaims, q ListUsersQuery) (*UserPage, error) {
	if !CanListUsers(actor.Role) {
		return nil, ErrInsufficientRole
	}

	filter, page, limit, err := buildFilter(q)
	if err != nil {
		return nil, err
	}

	total, err := s.accounts.Count(ctx, filter)
	if err != nil {
		return nil, internal("count accounts", err)
	}

	users := []domain.Account{}
	if total > filter.Offset {
		users, err = s.accounts.List(ctx, filter)
		if err != nil {
			return nil, internal("list accounts", err)
		}
	}

	return &UserPage{
		Users: users,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

func buildFilter(q ListUsersQuery) (domain.AccountFilter, int, int, error) {
	page := q.Page
	if page <= 0 {
		page = defaultPage
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filter := domain.AccountFilter{
		Search:    strings.TrimSpace(q.Search),
		SortBy:    domain.SortByCreatedAt,
		SortOrder: domain.SortDesc,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}

	if q.Role != "" {
		role, err := domain.ParseRole(q.Role)
		if err != nil {
			return domain.AccountFilter{}, 0, 0, badRequest("role must be one of USER, SALES, ADMIN")
		}
		filter.Role = &role
	}

	if q.SortBy != "" {
		field := domain.SortField(q.SortBy)
		if !field.Valid() {
			return domain.AccountFilter{}, 0, 0, badRequest("sortBy must be one of createdAt, updatedAt, email, name")
		}
		filter.SortBy = field
	}

	switch strings.ToLower(q.SortOrder) {
	case "":
	case string(domain.SortAsc):
		filter.SortOrder = domain.SortAsc
	case string(domain.SortDesc):
		filter.SortOrder = domain.SortDesc
	default:
		return domain.AccountFilter{}, 0, 0, badRequest("sortOrder must be asc or desc")
	}

	return filter, page, limit, nil
}
