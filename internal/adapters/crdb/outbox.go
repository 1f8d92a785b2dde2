package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

// NewOutboxRecord encodes payload as JSON. dedupeKey defaults to the record id.
func NewOutboxRecord(aggregateType string, aggregateID uuid.UUID, eventType, dedupeKey string, payload any) (OutboxRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxRecord{}, errors.Wrapf(err, "encode %s payload", eventType)
	}
	id := uuid.New()
	if dedupeKey == "" {
		dedupeKey = id.String()
	}
	return OutboxRecord{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		Status:        "NEW",
		DedupeKey:     dedupeKey,
	}, nil
}

type OutboxRepo struct {
	db DB
}

// Insert queues records. A record whose dedupe key was already queued is skipped.
func (r *OutboxRepo) Insert(ctx context.Context, records ...OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
			VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
			ON CONFLICT (dedupe_key) DO NOTHING
		`, rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, rec.Payload, rec.DedupeKey)
	}
	return wrap("outbox.Insert", r.db.SendBatch(ctx, batch).Close())
}

// ClaimBatch locks up to limit unpublished records. It must run inside a transaction
// so that concurrent relays skip each other's rows.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, wrap("outbox.ClaimBatch", err)
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload,
			&rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, wrap("outbox.ClaimBatch", err)
		}
		records = append(records, rec)
	}
	return records, wrap("outbox.ClaimBatch", rows.Err())
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return wrap("outbox.MarkPublished", err)
}

// ListByAggregate returns the records queued for an aggregate, oldest first.
func (r *OutboxRepo) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]OutboxRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE aggregate_id = $1 ORDER BY created_at, event_type
	`, aggregateID)
	if err != nil {
		return nil, wrap("outbox.ListByAggregate", err)
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload,
			&rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, wrap("outbox.ListByAggregate", err)
		}
		records = append(records, rec)
	}
	return records, wrap("outbox.ListByAggregate", rows.Err())
}
