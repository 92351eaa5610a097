// internal/exchange/bookevents.go
package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"bookswap/internal/broker"
)

// BookEventHandler consumes catalog facts. Exchange keeps no book state, so
// facts are only logged.
func BookEventHandler(logger *zap.Logger) broker.Handler {
	return func(_ context.Context, d broker.Delivery) error {
		var book struct {
			ID      int64  `json:"id"`
			OwnerID int64  `json:"owner_id"`
			Status  string `json:"status"`
		}
		if err := json.Unmarshal(d.Data, &book); err != nil {
			return fmt.Errorf("decode %s payload: %w", d.Type, err)
		}

		switch d.Type {
		case broker.BookCreated, broker.BookStatusUpdated:
			logger.Info("book event received",
				zap.String("type", d.Type),
				zap.Int64("book_id", book.ID),
				zap.Int64("owner_id", book.OwnerID),
				zap.String("status", book.Status),
			)
		default:
			logger.Debug("ignoring unknown fact", zap.String("type", d.Type))
		}
		return nil
	}
}
