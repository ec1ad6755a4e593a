package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role enumerates the access levels an account may hold.
type Role string

const (
	RoleUser  Role = "USER"
	RoleSales Role = "SALES"
	RoleAdmin Role = "ADMIN"
)

// DefaultRole is assigned to every newly created account.
const DefaultRole = RoleUser

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSales, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole converts a raw value into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Provider tags how an account proves its identity.
type Provider string

const (
	// ProviderLocal accounts authenticate with an email and password.
	ProviderLocal Provider = "LOCAL"
	// ProviderGoogle accounts are federated through Google sign-in.
	ProviderGoogle Provider = "GOOGLE"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle:
		return true
	default:
		return false
	}
}

// IsFederated reports whether the account was established by an external identity provider.
func (p Provider) IsFederated() bool {
	switch p {
	case ProviderGoogle:
		return true
	case ProviderLocal:
		return false
	default:
		return false
	}
}

// Account mirrors the persisted representation in the users table.
type Account struct {
	ID           string
	Email        string
	Name         *string
	Phone        *string
	PasswordHash *string
	Provider     Provider
	Role         Role
	IsVerified   bool
	OTPCode      *string
	OTPExpiry    *time.Time
	Avatar       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether a local password hash is present.
func (a Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// Claims returns the identity snapshot carried by issued tokens.
func (a Account) Claims() TokenClaims {
	return TokenClaims{UserID: a.ID, Email: a.Email, Role: a.Role}
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FederatedIdentity is a verified identity claim handed over by an external provider.
type FederatedIdentity struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
}

// SortField enumerates the columns the account listing can be ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByEmail     SortField = "email"
	SortByName      SortField = "name"
)

// Valid reports whether f is a supported sort column.
func (f SortField) Valid() bool {
	switch f {
	case SortByCreatedAt, SortByUpdatedAt, SortByEmail, SortByName:
		return true
	default:
		return false
	}
}

// SortOrder is the direction of a listing sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// AccountFilter narrows and pages the account listing.
type AccountFilter struct {
	Search    string
	Role      *Role
	SortBy    SortField
	SortOrder SortOrder
	Limit     int
	Offset    int
}
