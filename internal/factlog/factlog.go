// internal/factlog/factlog.go
package factlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Schema creates the fact table. Facts are append-only.
const Schema = `
	CREATE TABLE IF NOT EXISTS facts (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type VARCHAR(50) NOT NULL,
		aggregate_id BIGINT NOT NULL,
		fact_type VARCHAR(100) NOT NULL,
		actor_id BIGINT NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS facts_aggregate_idx ON facts (aggregate_type, aggregate_id, id);
`

// Fact is one recorded state change of an aggregate.
type Fact struct {
	ID            int64           `json:"id" db:"id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id" db:"aggregate_id"`
	Type          string          `json:"type" db:"fact_type"`
	ActorID       int64           `json:"actor_id" db:"actor_id"`
	Data          json.RawMessage `json:"data" db:"data"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Log appends and reads facts.
type Log struct {
	db      *sqlx.DB
	tracer  trace.Tracer
	appends metric.Int64Counter
}

func New(db *sqlx.DB) *Log {
	appends, err := otel.Meter("bookswap/factlog").Int64Counter("factlog.appends",
		metric.WithDescription("Facts appended, by aggregate and fact type."),
	)
	if err != nil {
		otel.Handle(err)
	}
	return &Log{
		db:      db,
		tracer:  otel.Tracer("bookswap/factlog"),
		appends: appends,
	}
}

// Append records a fact using ex, which may be a transaction so the fact
// commits or rolls back together with the state change it describes.
func (l *Log) Append(ctx context.Context, ex sqlx.ExtContext, aggregateType string, aggregateID, actorID int64, factType string, data interface{}) error {
	ctx, span := l.tracer.Start(ctx, "factlog.append",
		trace.WithAttributes(
			attribute.String("aggregate.type", aggregateType),
			attribute.Int64("aggregate.id", aggregateID),
			attribute.String("fact.type", factType),
		),
	)
	defer span.End()

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal fact data: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO facts (aggregate_type, aggregate_id, fact_type, actor_id, data)
		VALUES ($1, $2, $3, $4, $5)
	`, aggregateType, aggregateID, factType, actorID, payload)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert fact: %w", err)
	}

	if l.appends != nil {
		l.appends.Add(ctx, 1, metric.WithAttributes(
			attribute.String("aggregate.type", aggregateType),
			attribute.String("fact.type", factType),
		))
	}
	return nil
}

// Load returns the facts of one aggregate, oldest first.
func (l *Log) Load(ctx context.Context, aggregateType string, aggregateID int64) ([]Fact, error) {
	ctx, span := l.tracer.Start(ctx, "factlog.load",
		trace.WithAttributes(
			attribute.String("aggregate.type", aggregateType),
			attribute.Int64("aggregate.id", aggregateID),
		),
	)
	defer span.End()

	facts := []Fact{}
	err := l.db.SelectContext(ctx, &facts, `
		SELECT id, aggregate_type, aggregate_id, fact_type, actor_id, data, created_at
		FROM facts
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY id ASC
	`, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}

	span.SetAttributes(attribute.Int("facts.loaded", len(facts)))
	return facts, nil
}
