// internal/exchange/service.go
package exchange

import (
	"context"

	"bookswap/internal/factlog"
)

// Service defines the interface for the exchange service.
type Service interface {
	Create(ctx context.Context, senderID, bookID, recipientID int64) (*ExchangeRequest, error)
	ListMine(ctx context.Context, userID int64) ([]ExchangeRequest, error)
	Approve(ctx context.Context, recipientID, id int64) (*ExchangeRequest, error)
	Complete(ctx context.Context, participantID, id int64) (*ExchangeRequest, error)
	Reject(ctx context.Context, recipientID, id int64) (*ExchangeRequest, error)
	History(ctx context.Context, participantID, id int64) ([]factlog.Fact, error)
}
