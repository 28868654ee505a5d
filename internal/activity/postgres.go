package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/events"
)

// PostgresLog persists card events in PostgreSQL.
type PostgresLog struct {
	db *pgxpool.Pool
}

func NewPostgresLog(db *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Record(ctx context.Context, evt events.CardEvent) (bool, error) {
	id, err := uuid.Parse(evt.ID)
	if err != nil {
		id = uuid.New()
	}
	raw := evt.RawPayload
	if len(raw) == 0 {
		raw = json.RawMessage(`null`)
	}
	tag, err := l.db.Exec(ctx, `INSERT INTO card_events
            (id, kind, card_ref, reference, amount, currency, status, narrative, reason, raw_payload, owner_id, processed, received_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
        ON CONFLICT (kind, card_ref, reference) DO NOTHING`,
		id, string(evt.Kind), evt.CardRef, evt.Reference, evt.Amount.String(), evt.Currency, evt.Status,
		evt.Narrative, evt.Reason, []byte(raw), evt.OwnerID, evt.Processed, evt.ReceivedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (l *PostgresLog) List(ctx context.Context, ownerID string, limit int) ([]events.CardEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `SELECT id, kind, card_ref, reference, amount::text, currency, status, narrative, reason,
            raw_payload, COALESCE(owner_id, ''), processed, received_at
        FROM card_events WHERE owner_id = $1 ORDER BY received_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.CardEvent
	for rows.Next() {
		var (
			evt    events.CardEvent
			id     uuid.UUID
			kind   string
			amount string
			raw    []byte
		)
		if err := rows.Scan(&id, &kind, &evt.CardRef, &evt.Reference, &amount, &evt.Currency, &evt.Status,
			&evt.Narrative, &evt.Reason, &raw, &evt.OwnerID, &evt.Processed, &evt.ReceivedAt); err != nil {
			return nil, err
		}
		if evt.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		evt.ID = id.String()
		evt.Kind = events.Kind(kind)
		evt.RawPayload = raw
		evt.ReceivedAt = evt.ReceivedAt.UTC()
		out = append(out, evt)
	}
	return out, rows.Err()
}
