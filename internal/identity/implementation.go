// internal/identity/implementation.go
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bookswap/internal/auth"
	"bookswap/internal/broker"
	"bookswap/internal/metrics"
	"bookswap/internal/notify"
)

// Schema creates the user table.
const Schema = `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(255) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		full_name VARCHAR(255),
		city VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Migrate creates the identity tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// uniqueViolation is the PostgreSQL error code for a unique constraint.
const uniqueViolation = "23505"

// service implements the Service interface.
type service struct {
	db        *sqlx.DB
	tokens    *auth.TokenManager
	publisher broker.Publisher
	notifier  notify.Notifier
	limiter   *rate.Limiter
	logger    *zap.Logger

	// dummyHash is verified against when a username is unknown so that
	// both failure paths cost the same.
	dummyHash string
}

// NewService creates a new identity service instance. A nil limiter
// disables rate limiting.
func NewService(db *sqlx.DB, tokens *auth.TokenManager, publisher broker.Publisher, notifier notify.Notifier, limiter *rate.Limiter, logger *zap.Logger) Service {
	dummy, err := hashPassword("bookswap-dummy-password")
	if err != nil {
		logger.Warn("failed to prepare dummy password hash", zap.Error(err))
	}
	return &service{
		db:        db,
		tokens:    tokens,
		publisher: publisher,
		notifier:  notifier,
		limiter:   limiter,
		logger:    logger,
		dummyHash: dummy,
	}
}

func (s *service) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Register creates a user and returns a token for it.
func (s *service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	if !s.allow() {
		return nil, ErrRateLimited
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}

	passwordHash, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{}
	err = s.db.GetContext(ctx, user, `
		INSERT INTO users (username, email, password_hash, full_name, city)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, email, full_name, city, created_at
	`, in.Username, in.Email, passwordHash, in.FullName, in.City)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	// The user exists from here on; a broker outage is logged, not returned.
	err = s.publisher.Publish(ctx, broker.Fact{Type: broker.UserCreated, Data: user})
	metrics.RecordFact(broker.UserCreated, err)
	if err != nil {
		s.logger.Warn("user created fact not published", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	s.notifier.Notify("user_created", user)

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return &Registration{Token: token, User: user}, nil
}

// Login checks a username and password and returns a fresh token. Unknown
// usernames and wrong passwords fail identically.
func (s *service) Login(ctx context.Context, username, password string) (string, error) {
	if !s.allow() {
		return "", ErrRateLimited
	}

	cred := credential{}
	err := s.db.GetContext(ctx, &cred, `
		SELECT id, username, password_hash
		FROM users
		WHERE username = $1
	`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			verifyPassword(password, s.dummyHash)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}

	ok, err := verifyPassword(password, cred.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	return s.tokens.Issue(cred.ID, cred.Username)
}

// Validate reports whether token is a live token issued with our secret.
func (s *service) Validate(ctx context.Context, token string) auth.Result {
	res, _ := s.tokens.Verify(ctx, token)
	return res
}

// ListUsers returns every user in storage order.
func (s *service) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT id, username, email, full_name, city, created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the caller's own account.
func (s *service) DeleteUser(ctx context.Context, callerID, id int64) error {
	if callerID != id {
		return ErrForbidden
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}

	s.logger.Info("user deleted", zap.Int64("user_id", id))
	return nil
}
