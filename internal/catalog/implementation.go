// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"bookswap/internal/broker"
	"bookswap/internal/metrics"
	"bookswap/internal/notify"
)

// Schema creates the book table.
const Schema = `
	CREATE TABLE IF NOT EXISTS books (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		author VARCHAR(255) NOT NULL,
		owner_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'available',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Migrate creates the catalog tables if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create books table: %w", err)
	}
	return nil
}

// service implements the Service interface.
type service struct {
	db        *sqlx.DB
	publisher broker.Publisher
	notifier  notify.Notifier
	logger    *zap.Logger
}

// NewService creates a new catalog service instance.
func NewService(db *sqlx.DB, publisher broker.Publisher, notifier notify.Notifier, logger *zap.Logger) Service {
	return &service{
		db:        db,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
	}
}

// ListBooks returns the owner's books in storage order.
func (s *service) ListBooks(ctx context.Context, ownerID int64) ([]Book, error) {
	books := []Book{}
	err := s.db.SelectContext(ctx, &books, `
		SELECT id, title, author, owner_id, status, created_at
		FROM books
		WHERE owner_id = $1
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// CreateBook lists a new available book for the owner.
func (s *service) CreateBook(ctx context.Context, ownerID int64, title, author string) (*Book, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" {
		return nil, ErrInvalidInput
	}

	book := &Book{}
	err := s.db.GetContext(ctx, book, `
		INSERT INTO books (title, author, owner_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, author, owner_id, status, created_at
	`, title, author, ownerID, StatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}

	s.announce(ctx, broker.BookCreated, "book_created", book)
	return book, nil
}

// UpdateStatus sets the status of one of the owner's books. Any status
// string is accepted.
func (s *service) UpdateStatus(ctx context.Context, ownerID, id int64, status string) (*Book, error) {
	book := &Book{}
	err := s.db.GetContext(ctx, book, `
		UPDATE books
		SET status = $1
		WHERE id = $2 AND owner_id = $3
		RETURNING id, title, author, owner_id, status, created_at
	`, status, id, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("failed to update book status: %w", err)
	}

	s.announce(ctx, broker.BookStatusUpdated, "book_status_updated", book)
	return book, nil
}

// Search finds books of any owner whose title or author contains query,
// ignoring case.
func (s *service) Search(ctx context.Context, query string) ([]Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	books := []Book{}
	err := s.db.SelectContext(ctx, &books, `
		SELECT id, title, author, owner_id, status, created_at
		FROM books
		WHERE title ILIKE $1 OR author ILIKE $1
		ORDER BY id
		LIMIT $2
	`, "%"+escapeLike(query)+"%", searchLimit)
	if err != nil {
		return nil, fmt.Errorf("database search failed: %w", err)
	}
	return books, nil
}

// announce publishes a book fact and pushes the live notification. The
// book is already stored, so a broker failure is only logged.
func (s *service) announce(ctx context.Context, factType, event string, book *Book) {
	err := s.publisher.Publish(ctx, broker.Fact{Type: factType, Data: book})
	metrics.RecordFact(factType, err)
	if err != nil {
		s.logger.Warn("book fact not published",
			zap.String("fact", factType),
			zap.Int64("book_id", book.ID),
			zap.Error(err),
		)
	}
	s.notifier.Notify(event, book)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
