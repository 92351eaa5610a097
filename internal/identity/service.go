// internal/identity/service.go
package identity

import (
	"context"

	"bookswap/internal/auth"
)

// Service defines the interface for the identity service.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*Registration, error)
	Login(ctx context.Context, username, password string) (string, error)
	Validate(ctx context.Context, token string) auth.Result
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, callerID, id int64) error
}
