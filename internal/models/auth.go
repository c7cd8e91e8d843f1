package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	// EntityID is the tribe or department managed by the user, empty for admins.
	EntityID string `json:"entity_id,omitempty"`
	jwt.RegisteredClaims
}
