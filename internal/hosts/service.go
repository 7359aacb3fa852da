// Package hosts manages tenants and their configured channels.
package hosts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel type identifiers stored in host_channels.channel.
const (
	ChannelKrossbooking = "krossbooking"
	ChannelSmoobu       = "smoobu"
	ChannelIMAP         = "imap"
	ChannelMailgun      = "mailgun"
)

// Host is one tenant.
type Host struct {
	ID                       uuid.UUID
	Name                     string
	AutoReplyNewReservations bool
}

// Channel is one configured ingestion channel of a tenant. Credentials
// holds the channel-specific JSON credential blob.
type Channel struct {
	ID          uuid.UUID
	HostID      uuid.UUID
	Channel     string
	Credentials json.RawMessage
	Disabled    bool
}

var validate = validator.New()

// Credentials decodes a channel credential blob into its typed form and
// checks it against the type's validate tags, so a misconfigured channel
// fails at start instead of at the first provider call.
func Credentials[T any](ch Channel) (T, error) {
	var creds T
	if err := json.Unmarshal(ch.Credentials, &creds); err != nil {
		return creds, fmt.Errorf("decode %s credentials: %w", ch.Channel, err)
	}
	if err := validate.Struct(creds); err != nil {
		return creds, fmt.Errorf("invalid %s credentials: %w", ch.Channel, err)
	}
	return creds, nil
}

// Service reads and updates tenants and channel rows.
type Service struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		logger: log.With(slog.String("service", "hosts")),
		pool:   pool,
	}
}

// GetHost loads one tenant, nil when absent.
func (s *Service) GetHost(ctx context.Context, id uuid.UUID) (*Host, error) {
	var h Host
	err := s.pool.QueryRow(ctx, `SELECT id, name, auto_reply_new_reservations FROM hosts WHERE id = $1`, id).
		Scan(&h.ID, &h.Name, &h.AutoReplyNewReservations)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query host: %w", err)
	}
	return &h, nil
}

// CreateHost registers a tenant.
func (s *Service) CreateHost(ctx context.Context, name string) (*Host, error) {
	h := Host{Name: name}
	err := s.pool.QueryRow(ctx, `INSERT INTO hosts (name) VALUES ($1) RETURNING id`, name).Scan(&h.ID)
	if err != nil {
		return nil, fmt.Errorf("insert host: %w", err)
	}
	s.logger.Info("host created", slog.String("host_id", h.ID.String()), slog.String("name", name))
	return &h, nil
}

// SetAutoReplyNewReservations flips the tenant-level new-reservation
// auto-reply flag.
func (s *Service) SetAutoReplyNewReservations(ctx context.Context, hostID uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE hosts SET auto_reply_new_reservations = $2, updated_at = now() WHERE id = $1`,
		hostID, enabled)
	if err != nil {
		return fmt.Errorf("update host flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("host %s not found", hostID)
	}
	return nil
}

// SetClientAutoReply flips a client's per-client auto-reply opt-in.
func (s *Service) SetClientAutoReply(ctx context.Context, hostID, clientID uuid.UUID, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE clients SET auto_reply_enabled = $3, updated_at = now()
		WHERE host_id = $1 AND id = $2`, hostID, clientID, enabled)
	if err != nil {
		return fmt.Errorf("update client flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("client %s not found", clientID)
	}
	return nil
}

// UpsertChannel configures or replaces a tenant channel.
func (s *Service) UpsertChannel(ctx context.Context, hostID uuid.UUID, channel string, credentials json.RawMessage) (*Channel, error) {
	ch := Channel{HostID: hostID, Channel: channel, Credentials: credentials}
	err := s.pool.QueryRow(ctx, `INSERT INTO host_channels (host_id, channel, credentials)
		VALUES ($1, $2, $3)
		ON CONFLICT (host_id, channel) DO UPDATE SET credentials = EXCLUDED.credentials, disabled = FALSE, updated_at = now()
		RETURNING id`, hostID, channel, credentials).Scan(&ch.ID)
	if err != nil {
		return nil, fmt.Errorf("upsert channel: %w", err)
	}
	return &ch, nil
}

// GetChannel loads one channel row, nil when absent.
func (s *Service) GetChannel(ctx context.Context, id uuid.UUID) (*Channel, error) {
	var ch Channel
	err := s.pool.QueryRow(ctx, `SELECT id, host_id, channel, credentials, disabled FROM host_channels WHERE id = $1`, id).
		Scan(&ch.ID, &ch.HostID, &ch.Channel, &ch.Credentials, &ch.Disabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query channel: %w", err)
	}
	return &ch, nil
}

// ListActiveChannels returns every enabled channel row of the given
// type, across tenants. The polling manager starts one worker per row.
func (s *Service) ListActiveChannels(ctx context.Context, channel string) ([]Channel, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, host_id, channel, credentials, disabled FROM host_channels
		WHERE channel = $1 AND NOT disabled
		ORDER BY created_at`, channel)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.HostID, &ch.Channel, &ch.Credentials, &ch.Disabled); err != nil {
			return nil, fmt.Errorf("scan channel row: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}

// DisableChannel stops a channel from being polled or accepting
// webhooks without deleting its configuration.
func (s *Service) DisableChannel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE host_channels SET disabled = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("channel %s not found", id)
	}
	return nil
}
