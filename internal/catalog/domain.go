// internal/catalog/domain.go
package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFoundOrUnauthorized = errors.New("book not found or unauthorized")
	ErrInvalidInput           = errors.New("title and author are required")
	ErrEmptyQuery             = errors.New("missing search query")
)

// StatusAvailable is the status of a freshly listed book.
const StatusAvailable = "available"

// searchLimit caps the rows returned by Search.
const searchLimit = 20

// Book is a physical book owned by one user.
type Book struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Author    string    `json:"author" db:"author"`
	OwnerID   int64     `json:"owner_id" db:"owner_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
