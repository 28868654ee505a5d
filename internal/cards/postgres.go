package cards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletcore/internal/clock"
)

const cardColumns = `id, owner_id, processor_card_id, status, spending_limit::text, daily_spent::text, spent_on, created_at, updated_at`

// PostgresStore persists cards and authorization decisions in PostgreSQL.
type PostgresStore struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

// NewPostgresStore constructs a Postgres-backed card store.
func NewPostgresStore(db *pgxpool.Pool, c clock.Clock) *PostgresStore {
	if c == nil {
		c = clock.RealClock{}
	}
	return &PostgresStore{db: db, clock: c}
}

func (s *PostgresStore) Create(ctx context.Context, card Card) (Card, error) {
	id := uuid.New()
	if card.ID != "" {
		parsed, err := uuid.Parse(card.ID)
		if err != nil {
			return Card{}, fmt.Errorf("card id: %w", err)
		}
		id = parsed
	}
	if card.Status == "" {
		card.Status = StatusPending
	}
	row := s.db.QueryRow(ctx, `INSERT INTO cards (id, owner_id, processor_card_id, status, spending_limit, daily_spent, spent_on, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5::numeric, 0, $6, NOW(), NOW())
        RETURNING `+cardColumns,
		id, card.OwnerID, card.ProcessorCardID, string(card.Status), card.SpendingLimit.String(), Day(s.clock.Now()))
	return scanCard(row)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Card, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Card{}, ErrCardNotFound
	}
	return scanCard(s.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, parsed))
}

func (s *PostgresStore) GetByProcessorID(ctx context.Context, processorCardID string) (Card, error) {
	return scanCard(s.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE processor_card_id = $1`, processorCardID))
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Card, error) {
	rows, err := s.db.Query(ctx, `SELECT `+cardColumns+` FROM cards WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Transition(ctx context.Context, id string, to Status) (Card, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Card{}, ErrCardNotFound
	}
	var out Card
	err = pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		card, err := scanCard(tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1 FOR UPDATE`, parsed))
		if err != nil {
			return err
		}
		if !card.Status.CanTransition(to) {
			out = card
			return ErrIllegalTransition
		}
		out, err = scanCard(tx.QueryRow(ctx, `UPDATE cards SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING `+cardColumns, parsed, string(to)))
		return err
	})
	return out, err
}

func (s *PostgresStore) SetSpendingLimit(ctx context.Context, id string, limit decimal.Decimal) (Card, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Card{}, ErrCardNotFound
	}
	return scanCard(s.db.QueryRow(ctx, `UPDATE cards SET spending_limit = $2::numeric, updated_at = NOW() WHERE id = $1 RETURNING `+cardColumns, parsed, limit.String()))
}

// Authorize locks the card row, so concurrent swipes and redeliveries against one card
// serialize on it. Unknown cards record a decline without taking a lock.
func (s *PostgresStore) Authorize(ctx context.Context, req AuthorizationRequest) (Decision, error) {
	var out Decision
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		card, err := scanCard(tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE processor_card_id = $1 FOR UPDATE`, req.CardRef))
		known := err == nil
		if err != nil && !errors.Is(err, ErrCardNotFound) {
			return err
		}

		if req.Reference != "" {
			var d Decision
			var cardID *uuid.UUID
			err := tx.QueryRow(ctx, `SELECT approved, reason, card_id, COALESCE(owner_id, '') FROM card_authorizations
                WHERE card_ref = $1 AND reference = $2`, req.CardRef, req.Reference).Scan(&d.Approved, &d.Reason, &cardID, &d.OwnerID)
			switch {
			case err == nil:
				if cardID != nil {
					d.CardID = cardID.String()
				}
				d.Replayed = true
				out = d
				return nil
			case !errors.Is(err, pgx.ErrNoRows):
				return err
			}
		}

		now := s.clock.Now()
		if !known {
			out = decisionFor(Card{}, ErrCardNotRecognized)
		} else {
			evalErr := Evaluate(card, req.Amount, now)
			if evalErr == nil {
				card.DailySpent = card.SpentToday(now).Add(req.Amount)
				card.SpentOn = Day(now)
				if _, err := tx.Exec(ctx, `UPDATE cards SET daily_spent = $2::numeric, spent_on = $3, updated_at = NOW() WHERE id = $1`,
					uuid.MustParse(card.ID), card.DailySpent.String(), card.SpentOn); err != nil {
					return err
				}
			}
			out = decisionFor(card, evalErr)
		}

		if req.Reference == "" {
			return nil
		}
		var cardID *uuid.UUID
		if known {
			id := uuid.MustParse(card.ID)
			cardID = &id
		}
		_, err = tx.Exec(ctx, `INSERT INTO card_authorizations (card_ref, reference, card_id, owner_id, amount, approved, reason, created_at)
            VALUES ($1, $2, $3, NULLIF($4, ''), $5::numeric, $6, $7, NOW())
            ON CONFLICT (card_ref, reference) DO NOTHING`,
			req.CardRef, req.Reference, cardID, out.OwnerID, req.Amount.String(), out.Approved, out.Reason)
		return err
	})
	if err != nil {
		return Decision{}, err
	}
	return out, nil
}

func scanCard(row pgx.Row) (Card, error) {
	var (
		c       Card
		id      uuid.UUID
		status  string
		limit   string
		spent   string
		spentOn time.Time
	)
	if err := row.Scan(&id, &c.OwnerID, &c.ProcessorCardID, &status, &limit, &spent, &spentOn, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrCardNotFound
		}
		return Card{}, err
	}
	var err error
	if c.SpendingLimit, err = decimal.NewFromString(limit); err != nil {
		return Card{}, fmt.Errorf("parse spending limit: %w", err)
	}
	if c.DailySpent, err = decimal.NewFromString(spent); err != nil {
		return Card{}, fmt.Errorf("parse daily spent: %w", err)
	}
	c.ID = id.String()
	c.Status = Status(status)
	c.SpentOn = Day(spentOn)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
