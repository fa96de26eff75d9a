package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Identity is the verified caller behind an HTTP request or realtime session.
type Identity struct {
	UserID   string     `json:"user_id"`
	Role     UserRole   `json:"role"`
	Status   UserStatus `json:"status"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
}
