package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists the order projection in Postgres. Schema: schema.sql.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

// Get loads an order together with its metadata.
func (s *PGStore) Get(ctx context.Context, id int64) (*Order, error) {
	o := Order{ID: id, Meta: map[string]string{}}
	err := s.Pool.QueryRow(ctx,
		`SELECT number, status, total_amount, billing_phone FROM orders WHERE id = $1`, id,
	).Scan(&o.Number, &o.Status, &o.TotalAmount, &o.BillingPhone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := s.Pool.Query(ctx, `SELECT key, value FROM order_meta WHERE order_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get order meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan order meta: %w", err)
		}
		o.Meta[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order meta: %w", err)
	}
	return &o, nil
}

// UpdateStatus transitions the order and records a note when provided.
func (s *PGStore) UpdateStatus(ctx context.Context, id int64, status Status, note string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if strings.TrimSpace(note) != "" {
		return s.AddNote(ctx, id, note)
	}
	return nil
}

// SetMeta upserts one metadata key.
func (s *PGStore) SetMeta(ctx context.Context, id int64, key, value string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO order_meta (order_id, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (order_id, key) DO UPDATE SET value = EXCLUDED.value`,
		id, key, value)
	if err != nil {
		return fmt.Errorf("set order meta: %w", err)
	}
	return nil
}

// DeleteMeta removes one metadata key.
func (s *PGStore) DeleteMeta(ctx context.Context, id int64, key string) error {
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM order_meta WHERE order_id = $1 AND key = $2`, id, key)
	if err != nil {
		return fmt.Errorf("delete order meta: %w", err)
	}
	return nil
}

// FindIDByMeta resolves an order id by a stored metadata value.
func (s *PGStore) FindIDByMeta(ctx context.Context, key, value string) (int64, error) {
	var id int64
	err := s.Pool.QueryRow(ctx,
		`SELECT order_id FROM order_meta WHERE key = $1 AND value = $2 LIMIT 1`,
		key, value,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("find order by meta: %w", err)
	}
	return id, nil
}

// AddNote appends an audit note.
func (s *PGStore) AddNote(ctx context.Context, id int64, note string) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`, id, note)
	if err != nil {
		return fmt.Errorf("add order note: %w", err)
	}
	return nil
}

// MarkPaid marks the order paid and records the settlement reference.
func (s *PGStore) MarkPaid(ctx context.Context, id int64, trxID string) error {
	if err := s.UpdateStatus(ctx, id, StatusPaid, ""); err != nil {
		return err
	}
	return s.SetMeta(ctx, id, MetaTransactionID, trxID)
}
