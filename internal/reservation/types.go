// Package reservation holds the canonical reservation model and the
// reconciler that maps incoming channel events onto stored records.
package reservation

import (
	"time"

	"github.com/google/uuid"
)

// UnknownID is the sentinel for a channel event that carries no usable
// primary reservation id. Resolution then falls through to the secondary
// and thread keys.
const UnknownID = "unknown"

// Status is the lifecycle state of a stored reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Canonical is the channel-independent reservation event shape produced
// by parsers and channel adapters. It is immutable once built and is
// consumed exactly once by the reconciler.
type Canonical struct {
	PrimaryID            string
	SecondaryID          string
	ThreadKey            string
	SourceChannel        string
	PropertyExternalName string
	GuestName            string
	GuestEmail           string
	GuestPhone           string
	CheckIn              *time.Time
	CheckOut             *time.Time
	Adults               int
	Children             int
	TotalAmount          *float64
	Currency             string
}

// HasStayDates reports whether both stay dates are present. A
// modification event without stay dates is the implicit cancellation
// signal when a record already exists.
func (c Canonical) HasStayDates() bool {
	return c.CheckIn != nil && c.CheckOut != nil
}

// HasPrimaryID reports whether the event carries a real primary id.
func (c Canonical) HasPrimaryID() bool {
	return c.PrimaryID != "" && c.PrimaryID != UnknownID
}

// KeyType identifies which external identifier a lookup key holds.
type KeyType string

const (
	KeyPrimary   KeyType = "primary"
	KeySecondary KeyType = "secondary"
	KeyThread    KeyType = "thread"
)

// IdentityKey is one (type, value) lookup candidate.
type IdentityKey struct {
	Type  KeyType
	Value string
}

// IdentityKeySet lists lookup candidates in priority order.
type IdentityKeySet []IdentityKey

// KeySet builds the ordered identity key candidates for the event:
// primary id when known, then secondary id, then the channel thread key.
func (c Canonical) KeySet() IdentityKeySet {
	var keys IdentityKeySet
	if c.HasPrimaryID() {
		keys = append(keys, IdentityKey{Type: KeyPrimary, Value: c.PrimaryID})
	}
	if c.SecondaryID != "" {
		keys = append(keys, IdentityKey{Type: KeySecondary, Value: c.SecondaryID})
	}
	if c.ThreadKey != "" {
		keys = append(keys, IdentityKey{Type: KeyThread, Value: c.ThreadKey})
	}
	return keys
}

// Record is a stored reservation row.
type Record struct {
	ID            uuid.UUID
	HostID        uuid.UUID
	PropertyID    uuid.UUID
	ClientID      uuid.UUID
	SourceChannel string
	PrimaryRef    string
	SecondaryRef  string
	ThreadRef     string
	GuestName     string
	GuestEmail    string
	GuestPhone    string
	CheckIn       *time.Time
	CheckOut      *time.Time
	Adults        int
	Children      int
	TotalAmount   *float64
	Currency      string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Client is a stored guest/client row within a tenant.
type Client struct {
	ID               uuid.UUID
	HostID           uuid.UUID
	Name             string
	Email            string
	Phone            string
	AutoReplyEnabled bool
	ReservationRef   string
}

// Outcome is the result of one reconciliation pass.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeSkipped   Outcome = "skipped"
)

// Event is the reconciler input: a canonical reservation plus the
// explicit-cancellation flag set by the classifying parser or adapter.
type Event struct {
	Reservation Canonical
	Cancelled   bool
}
