package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const recordColumns = `id, host_id, property_id, client_id, source_channel,
	primary_ref, secondary_ref, thread_ref,
	guest_name, guest_email, guest_phone,
	check_in, check_out, adults, children,
	total_amount, currency, status, created_at, updated_at`

func (s *PGStore) Find(ctx context.Context, hostID uuid.UUID, keyType KeyType, keyValue string) (*Record, error) {
	if keyValue == "" {
		return nil, nil
	}
	var column string
	switch keyType {
	case KeyPrimary:
		column = "primary_ref"
	case KeySecondary:
		column = "secondary_ref"
	case KeyThread:
		column = "thread_ref"
	default:
		return nil, fmt.Errorf("unknown key type %q", keyType)
	}

	query := fmt.Sprintf(`SELECT %s FROM reservations
		WHERE host_id = $1 AND %s = $2
		ORDER BY created_at DESC
		LIMIT 1`, recordColumns, column)

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, hostID, keyValue))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reservation by %s: %w", column, err)
	}
	return rec, nil
}

func (s *PGStore) Upsert(ctx context.Context, rec *Record) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE reservations SET
			property_id = $2, client_id = $3, source_channel = $4,
			primary_ref = $5, secondary_ref = $6, thread_ref = $7,
			guest_name = $8, guest_email = $9, guest_phone = $10,
			check_in = $11, check_out = $12, adults = $13, children = $14,
			total_amount = $15, currency = $16, status = $17,
			updated_at = now()
		WHERE id = $1`,
		rec.ID, nullableUUID(rec.PropertyID), nullableUUID(rec.ClientID),
		rec.SourceChannel, rec.PrimaryRef, rec.SecondaryRef, rec.ThreadRef,
		rec.GuestName, rec.GuestEmail, rec.GuestPhone,
		rec.CheckIn, rec.CheckOut, rec.Adults, rec.Children,
		rec.TotalAmount, rec.Currency, rec.Status)
	if err != nil {
		return false, fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return false, nil
	}

	// New row. When the event carries a primary ref the insert is keyed on
	// (host, primary ref) so concurrent deliveries of the same event
	// converge on a single row instead of racing into duplicates.
	query := `INSERT INTO reservations
			(id, host_id, property_id, client_id, source_channel,
			 primary_ref, secondary_ref, thread_ref,
			 guest_name, guest_email, guest_phone,
			 check_in, check_out, adults, children,
			 total_amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	if rec.PrimaryRef != "" {
		query += ` ON CONFLICT (host_id, primary_ref) WHERE primary_ref <> '' DO UPDATE SET
			property_id = EXCLUDED.property_id, client_id = EXCLUDED.client_id,
			secondary_ref = EXCLUDED.secondary_ref, thread_ref = EXCLUDED.thread_ref,
			guest_name = EXCLUDED.guest_name, guest_email = EXCLUDED.guest_email,
			guest_phone = EXCLUDED.guest_phone,
			check_in = EXCLUDED.check_in, check_out = EXCLUDED.check_out,
			adults = EXCLUDED.adults, children = EXCLUDED.children,
			total_amount = EXCLUDED.total_amount, currency = EXCLUDED.currency,
			status = EXCLUDED.status, updated_at = now()`
	}
	// xmax = 0 distinguishes a fresh insert from a conflict-update.
	query += ` RETURNING id, (xmax = 0)`

	var created bool
	err = s.pool.QueryRow(ctx, query,
		rec.ID, rec.HostID, nullableUUID(rec.PropertyID), nullableUUID(rec.ClientID),
		rec.SourceChannel, rec.PrimaryRef, rec.SecondaryRef, rec.ThreadRef,
		rec.GuestName, rec.GuestEmail, rec.GuestPhone,
		rec.CheckIn, rec.CheckOut, rec.Adults, rec.Children,
		rec.TotalAmount, rec.Currency, rec.Status).Scan(&rec.ID, &created)
	if err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}
	return created, nil
}

func (s *PGStore) MarkCancelled(ctx context.Context, hostID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE reservations
		SET status = $3, updated_at = now()
		WHERE host_id = $1 AND id = $2`, hostID, id, StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %s not found", id)
	}
	return nil
}

func (s *PGStore) FindPropertyMapping(ctx context.Context, hostID uuid.UUID, externalName string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT id FROM properties
		WHERE host_id = $1 AND external_name = $2`, hostID, externalName).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("query property mapping: %w", err)
	}
	return id, true, nil
}

func (s *PGStore) CreatePropertyMapping(ctx context.Context, hostID uuid.UUID, externalName string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `INSERT INTO properties (host_id, external_name)
		VALUES ($1, $2)
		ON CONFLICT (host_id, external_name) DO UPDATE SET external_name = EXCLUDED.external_name
		RETURNING id`, hostID, externalName).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert property mapping: %w", err)
	}
	return id, nil
}

func (s *PGStore) ResolveHostByProperty(ctx context.Context, externalName string) (uuid.UUID, bool, error) {
	if externalName == "" {
		return uuid.Nil, false, nil
	}
	var hostID uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT host_id FROM properties
		WHERE external_name = $1
		ORDER BY created_at
		LIMIT 1`, externalName).Scan(&hostID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolve host by property: %w", err)
	}
	return hostID, true, nil
}

func (s *PGStore) FindClientByEmail(ctx context.Context, hostID uuid.UUID, email string) (*Client, error) {
	var c Client
	err := s.pool.QueryRow(ctx, `SELECT id, host_id, name, email, phone, auto_reply_enabled, reservation_ref
		FROM clients
		WHERE host_id = $1 AND email = $2
		ORDER BY created_at
		LIMIT 1`, hostID, email).
		Scan(&c.ID, &c.HostID, &c.Name, &c.Email, &c.Phone, &c.AutoReplyEnabled, &c.ReservationRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query client: %w", err)
	}
	return &c, nil
}

func (s *PGStore) CreateClient(ctx context.Context, client Client) (*Client, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO clients (host_id, name, email, phone, auto_reply_enabled, reservation_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`, client.HostID, client.Name, client.Email, client.Phone,
		client.AutoReplyEnabled, client.ReservationRef).Scan(&client.ID)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return &client, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec                  Record
		propertyID, clientID pgtype.UUID
	)
	err := row.Scan(&rec.ID, &rec.HostID, &propertyID, &clientID, &rec.SourceChannel,
		&rec.PrimaryRef, &rec.SecondaryRef, &rec.ThreadRef,
		&rec.GuestName, &rec.GuestEmail, &rec.GuestPhone,
		&rec.CheckIn, &rec.CheckOut, &rec.Adults, &rec.Children,
		&rec.TotalAmount, &rec.Currency, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if propertyID.Valid {
		rec.PropertyID = propertyID.Bytes
	}
	if clientID.Valid {
		rec.ClientID = clientID.Bytes
	}
	return &rec, nil
}

func nullableUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}
