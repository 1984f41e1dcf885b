package models

import "github.com/golang-jwt/jwt/v5"

// AuthClaims are the JWT claims the gateway issues. The user id comes
// from either `sub` or the .NET-style `nameid` claim.
type AuthClaims struct {
	NameID  string `json:"nameid,omitempty"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// AuthUser is the resolved identity attached to the request context.
type AuthUser struct {
	UserID  int
	Name    string
	Email   string
	IsAdmin bool
}

// RateLimitInfo feeds the X-RateLimit-* response headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime int64
}
