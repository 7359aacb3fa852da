package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hostbridge/hostbridge/internal/reservation"
)

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) HostAutoReplyNewReservations(ctx context.Context, hostID uuid.UUID) (bool, error) {
	var enabled bool
	err := s.pool.QueryRow(ctx, `SELECT auto_reply_new_reservations FROM hosts WHERE id = $1`, hostID).
		Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query host flag: %w", err)
	}
	return enabled, nil
}

func (s *PGStore) ClientByID(ctx context.Context, id uuid.UUID) (*reservation.Client, error) {
	return s.scanClient(s.pool.QueryRow(ctx, `SELECT id, host_id, name, email, phone, auto_reply_enabled, reservation_ref
		FROM clients WHERE id = $1`, id))
}

func (s *PGStore) ClientByEmail(ctx context.Context, hostID uuid.UUID, email string) (*reservation.Client, error) {
	return s.scanClient(s.pool.QueryRow(ctx, `SELECT id, host_id, name, email, phone, auto_reply_enabled, reservation_ref
		FROM clients
		WHERE host_id = $1 AND email = $2
		ORDER BY created_at
		LIMIT 1`, hostID, email))
}

func (s *PGStore) ClientByReservationRef(ctx context.Context, hostID uuid.UUID, ref string) (*reservation.Client, error) {
	return s.scanClient(s.pool.QueryRow(ctx, `SELECT id, host_id, name, email, phone, auto_reply_enabled, reservation_ref
		FROM clients
		WHERE host_id = $1 AND reservation_ref = $2
		ORDER BY created_at
		LIMIT 1`, hostID, ref))
}

func (s *PGStore) PropertyName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT external_name FROM properties WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query property: %w", err)
	}
	return name, nil
}

func (s *PGStore) RecordMessage(ctx context.Context, msg *StoredMessage) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO guest_messages
			(host_id, property_id, client_id, reservation_id, source, sender, body, eligible, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		msg.HostID, nullable(msg.PropertyID), nullable(msg.ClientID), nullable(msg.ReservationID),
		msg.Source, msg.Sender, msg.Body, msg.Eligible, msg.ReceivedAt).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert guest message: %w", err)
	}
	return nil
}

func (s *PGStore) CountMessages(ctx context.Context, reservationID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM guest_messages WHERE reservation_id = $1`, reservationID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count guest messages: %w", err)
	}
	return count, nil
}

func (s *PGStore) ListHistory(ctx context.Context, propertyID, clientID uuid.UUID, limit int) ([]Turn, error) {
	// Fetch the most recent turns, then return them oldest first.
	rows, err := s.pool.Query(ctx, `SELECT sender, body, received_at FROM (
			SELECT sender, body, received_at FROM guest_messages
			WHERE property_id = $1 AND client_id = $2
			ORDER BY received_at DESC
			LIMIT $3
		) recent ORDER BY received_at ASC`,
		nullable(propertyID), clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Sender, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return turns, nil
}

func (s *PGStore) scanClient(row pgx.Row) (*reservation.Client, error) {
	var c reservation.Client
	err := row.Scan(&c.ID, &c.HostID, &c.Name, &c.Email, &c.Phone, &c.AutoReplyEnabled, &c.ReservationRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan client: %w", err)
	}
	return &c, nil
}

func nullable(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}
