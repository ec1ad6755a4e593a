package domain

// TokenClaims is the identity payload embedded in access and refresh tokens.
type TokenClaims struct {
	UserID string
	Email  string
	Role   Role
}

// TokenPair is minted together from one account snapshot and never persisted.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
