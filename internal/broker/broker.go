// internal/broker/broker.go
package broker

import (
	"context"
	"encoding/json"
	"errors"
)

// Fact types carried by the event fabric.
const (
	BookCreated       = "BOOK_CREATED"
	BookStatusUpdated = "BOOK_STATUS_UPDATED"
	UserCreated       = "USER_CREATED"
)

// ErrNotConnected is returned by publishers while no broker connection exists.
var ErrNotConnected = errors.New("broker: not connected")

// Fact is an immutable record of something that happened.
type Fact struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Delivery is a fact as seen by a consumer, with its payload still encoded.
type Delivery struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Publisher sends facts. Publishing carries no delivery guarantee beyond
// what the concrete primitive documents.
type Publisher interface {
	Publish(ctx context.Context, fact Fact) error
}

// Handler consumes one delivery.
type Handler func(ctx context.Context, d Delivery) error
