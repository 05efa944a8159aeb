package auth

import "time"

type Role string

const RoleAdmin Role = "admin"

// Admin is an operator account allowed to manage cases.
type Admin struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is the identity carried by a verified token.
type Session struct {
	ID        string
	Role      Role
	ExpiresAt time.Time
}

// LoginRequest contains administrator credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
