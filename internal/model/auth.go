package model

import "time"

type AuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type AuthMeResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// AuthUser is the identity attached to a request after access-token
// verification.
type AuthUser struct {
	ID    string
	Email string
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is the token pair handed to a client on login and refresh. The
// refresh token travels only in the cookie, never in a response body.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}
