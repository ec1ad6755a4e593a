package domain

import "time"

// AccountRegisteredEvent represents the payload for account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	Name         *string
	Provider     Provider
	Reregistered bool
	RegisteredAt time.Time
}

// AccountVerifiedEvent represents the payload for account.verified messages.
type AccountVerifiedEvent struct {
	EventID    string
	UserID     string
	Email      string
	VerifiedAt time.Time
}

// PasswordResetRequestedEvent represents the payload for account.password_reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID     string
	UserID      string
	Email       string
	RequestedAt time.Time
	ExpiresAt   time.Time
}

// PasswordResetEvent represents the payload for account.password_reset messages.
type PasswordResetEvent struct {
	EventID string
	UserID  string
	ResetAt time.Time
}

// FederatedLoginEvent represents the payload for account.federated_login messages.
type FederatedLoginEvent struct {
	EventID    string
	UserID     string
	Email      string
	Provider   Provider
	Created    bool
	LoggedInAt time.Time
}
