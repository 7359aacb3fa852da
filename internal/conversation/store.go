package conversation

import (
	"context"

	"github.com/google/uuid"

	"github.com/hostbridge/hostbridge/internal/reservation"
)

// Store is the persistence surface the router consumes.
type Store interface {
	// HostAutoReplyNewReservations reads the tenant-level flag gating
	// auto-replies on brand-new reservations.
	HostAutoReplyNewReservations(ctx context.Context, hostID uuid.UUID) (bool, error)

	// ClientByID loads a client row by internal id, nil when absent.
	ClientByID(ctx context.Context, id uuid.UUID) (*reservation.Client, error)

	// ClientByEmail looks a client up by guest email within the tenant.
	ClientByEmail(ctx context.Context, hostID uuid.UUID, email string) (*reservation.Client, error)

	// ClientByReservationRef looks a client up by the reservation
	// reference stored on it at creation time.
	ClientByReservationRef(ctx context.Context, hostID uuid.UUID, ref string) (*reservation.Client, error)

	// PropertyName resolves the external display name of a property.
	PropertyName(ctx context.Context, id uuid.UUID) (string, error)

	// RecordMessage persists a guest message. Called for every inbound
	// message, routed or not.
	RecordMessage(ctx context.Context, msg *StoredMessage) error

	// CountMessages reports how many messages are already stored for the
	// reservation. Zero means the reservation is brand new.
	CountMessages(ctx context.Context, reservationID uuid.UUID) (int, error)

	// ListHistory returns up to limit most recent turns for the
	// (property, client) pair, oldest first.
	ListHistory(ctx context.Context, propertyID, clientID uuid.UUID, limit int) ([]Turn, error)
}
