package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when marking a notification the owner does not have.
var ErrNotFound = errors.New("notification not found")

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n Notification) error
	List(ctx context.Context, ownerID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, ownerID, id string) error
}

type memoryStore struct {
	mu    sync.RWMutex
	items []Notification
}

// NewMemoryStore creates an in-memory notification store.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Insert(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	return nil
}

func (s *memoryStore) List(_ context.Context, ownerID string, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Notification
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].OwnerID == ownerID {
			out = append(out, s.items[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) MarkRead(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].OwnerID == ownerID {
			s.items[i].IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

// PostgresStore persists notifications in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, n Notification) error {
	id, err := uuid.Parse(n.ID)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO notifications (id, owner_id, title, message, metadata, created_at, is_read)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, n.OwnerID, n.Title, n.Message, metadata, n.CreatedAt, n.IsRead)
	return err
}

func (s *PostgresStore) List(ctx context.Context, ownerID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT id, owner_id, title, message, metadata, created_at, is_read
        FROM notifications WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n        Notification
			id       uuid.UUID
			metadata []byte
		)
		if err := rows.Scan(&id, &n.OwnerID, &n.Title, &n.Message, &metadata, &n.CreatedAt, &n.IsRead); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, err
			}
		}
		n.ID = id.String()
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, ownerID, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND owner_id = $2`, parsed, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
