// internal/exchange/domain.go
package exchange

import (
	"errors"
	"time"
)

var (
	ErrNotFoundOrUnauthorized = errors.New("exchange request not found or unauthorized")
	ErrInvalidInput           = errors.New("book_id and recipient_id must be positive")
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// aggregateType keys exchange facts in the fact log.
const aggregateType = "exchange_request"

// ExchangeRequest is a proposal from sender to recipient about a book.
type ExchangeRequest struct {
	ID          int64     `json:"id" db:"id"`
	BookID      int64     `json:"book_id" db:"book_id"`
	SenderID    int64     `json:"sender_id" db:"sender_id"`
	RecipientID int64     `json:"recipient_id" db:"recipient_id"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
