package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles carried in access tokens.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleManager  UserRole = "MANAGER"
	RoleEmployee UserRole = "EMPLOYEE"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID         string   `json:"user_id"`
	TeammateID     string   `json:"teammate_id"`
	OrganizationID string   `json:"organization_id"`
	Role           UserRole `json:"role"`
	Email          string   `json:"email"`
	jwt.RegisteredClaims
}

