// internal/identity/domain.go
package identity

import (
	"errors"
	"time"
)

var (
	ErrDuplicateUser      = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("username, email and password are required")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("users may only delete themselves")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// User is a registered account. The password hash never leaves the service.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	FullName  *string   `json:"full_name,omitempty" db:"full_name"`
	City      *string   `json:"city,omitempty" db:"city"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name,omitempty"`
	City     *string `json:"city,omitempty"`
}

// Registration is returned to a newly registered user.
type Registration struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type credential struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
}
