package reservation

import (
	"context"

	"github.com/google/uuid"
)

// Store is the keyed document-store surface the reconciler consumes. The
// reconciler never issues queries itself; everything goes through these
// resolved operations.
type Store interface {
	// Find returns the reservation matching one identity key within the
	// tenant, or nil when no record matches.
	Find(ctx context.Context, hostID uuid.UUID, keyType KeyType, keyValue string) (*Record, error)

	// Upsert inserts or replaces a record. When the record carries a
	// primary ref the write is keyed on (host, primary ref) so concurrent
	// redelivery of the same event converges on one row; created reports
	// whether a new row was written.
	Upsert(ctx context.Context, rec *Record) (created bool, err error)

	// MarkCancelled flips the record status to cancelled. Records are
	// never deleted; cancellation history is an audit requirement.
	MarkCancelled(ctx context.Context, hostID, id uuid.UUID) error

	// FindPropertyMapping resolves an external property name to the
	// tenant-scoped internal property id.
	FindPropertyMapping(ctx context.Context, hostID uuid.UUID, externalName string) (uuid.UUID, bool, error)

	// CreatePropertyMapping registers a new external property name for
	// the tenant and returns the internal id.
	CreatePropertyMapping(ctx context.Context, hostID uuid.UUID, externalName string) (uuid.UUID, error)

	// ResolveHostByProperty finds the tenant owning an external property
	// name. Used by channel paths that carry no tenant scope of their
	// own (raw mailbox email).
	ResolveHostByProperty(ctx context.Context, externalName string) (uuid.UUID, bool, error)

	// FindClientByEmail looks a client up by guest email within the tenant.
	FindClientByEmail(ctx context.Context, hostID uuid.UUID, email string) (*Client, error)

	// CreateClient registers a client row and returns it.
	CreateClient(ctx context.Context, client Client) (*Client, error)
}
