// internal/exchange/implementation.go
package exchange

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"bookswap/internal/factlog"
	"bookswap/internal/metrics"
	"bookswap/internal/notify"
)

// Schema creates the exchange request table.
const Schema = `
	CREATE TABLE IF NOT EXISTS exchange_requests (
		id SERIAL PRIMARY KEY,
		book_id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		recipient_id INTEGER NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Migrate creates the exchange tables, including the fact log.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create exchange_requests table: %w", err)
	}
	if _, err := db.ExecContext(ctx, factlog.Schema); err != nil {
		return fmt.Errorf("create facts table: %w", err)
	}
	return nil
}

// Options tunes the service.
type Options struct {
	// StrictTransitions requires the legal prior status on every transition.
	StrictTransitions bool
}

// service implements the Service interface.
type service struct {
	db       *sqlx.DB
	facts    *factlog.Log
	notifier notify.Notifier
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewService creates a new exchange service instance.
func NewService(db *sqlx.DB, facts *factlog.Log, notifier notify.Notifier, opts Options, logger *zap.Logger) Service {
	return &service{
		db:       db,
		facts:    facts,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("bookswap/exchange"),
	}
}

// Create records a pending request. Neither the book nor the recipient is
// checked against the other services.
func (s *service) Create(ctx context.Context, senderID, bookID, recipientID int64) (*ExchangeRequest, error) {
	if bookID <= 0 || recipientID <= 0 {
		return nil, ErrInvalidInput
	}

	ctx, span := s.tracer.Start(ctx, "exchange.create",
		trace.WithAttributes(attribute.Int64("book.id", bookID), attribute.Int64("sender.id", senderID)),
	)
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req := &ExchangeRequest{}
	err = tx.GetContext(ctx, req, `
		INSERT INTO exchange_requests (book_id, sender_id, recipient_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, book_id, sender_id, recipient_id, status, created_at
	`, bookID, senderID, recipientID, StatusPending)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert exchange request: %w", err)
	}

	if err := s.facts.Append(ctx, tx, aggregateType, req.ID, senderID, "exchange_request_created", req); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("exchange request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("book_id", bookID),
		zap.Int64("sender_id", senderID),
		zap.Int64("recipient_id", recipientID),
	)
	s.notifier.Notify("exchange_request_created", req)
	return req, nil
}

// ListMine returns the requests the user sent or received, in storage order.
func (s *service) ListMine(ctx context.Context, userID int64) ([]ExchangeRequest, error) {
	reqs := []ExchangeRequest{}
	err := s.db.SelectContext(ctx, &reqs, `
		SELECT id, book_id, sender_id, recipient_id, status, created_at
		FROM exchange_requests
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchange requests: %w", err)
	}
	return reqs, nil
}

func (s *service) Approve(ctx context.Context, recipientID, id int64) (*ExchangeRequest, error) {
	return s.apply(ctx, approve, recipientID, id)
}

func (s *service) Complete(ctx context.Context, participantID, id int64) (*ExchangeRequest, error) {
	return s.apply(ctx, complete, participantID, id)
}

func (s *service) Reject(ctx context.Context, recipientID, id int64) (*ExchangeRequest, error) {
	return s.apply(ctx, reject, recipientID, id)
}

// apply runs t as a single conditional update and records its fact in the
// same transaction. Zero matched rows means the request is absent, the actor
// lacks the role or, in strict mode, the prior status is wrong.
func (s *service) apply(ctx context.Context, t transition, actorID, id int64) (req *ExchangeRequest, err error) {
	ctx, span := s.tracer.Start(ctx, "exchange."+t.name,
		trace.WithAttributes(
			attribute.Int64("request.id", id),
			attribute.Int64("actor.id", actorID),
			attribute.Bool("strict", s.opts.StrictTransitions),
		),
	)
	defer span.End()
	defer func() { metrics.RecordTransition(t.name, err) }()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args := t.query(id, actorID, s.opts.StrictTransitions)
	req = &ExchangeRequest{}
	if err = tx.GetContext(ctx, req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFoundOrUnauthorized
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to %s exchange request: %w", t.name, err)
	}

	if err = s.facts.Append(ctx, tx, aggregateType, req.ID, actorID, t.event, req); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("exchange request transitioned",
		zap.String("transition", t.name),
		zap.Int64("request_id", req.ID),
		zap.Int64("actor_id", actorID),
	)
	s.notifier.Notify(t.event, req)
	return req, nil
}

// History returns the recorded facts of a request to either of its parties.
func (s *service) History(ctx context.Context, participantID, id int64) ([]factlog.Fact, error) {
	var found int
	err := s.db.GetContext(ctx, &found, `
		SELECT 1
		FROM exchange_requests
		WHERE id = $1 AND (sender_id = $2 OR recipient_id = $2)
	`, id, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("failed to load exchange request: %w", err)
	}

	return s.facts.Load(ctx, aggregateType, id)
}
