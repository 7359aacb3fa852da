// Package conversation routes inbound guest messages to the owning
// reservation, client and property, gates auto-reply eligibility and
// assembles the bounded context window reply generation consumes.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// GuestMessage is the channel-independent form of one inbound guest
// message. ReservationRef holds the channel's reservation cross-reference
// and may be the unknown sentinel; ThreadID is the channel conversation
// key used as the fallback lookup.
type GuestMessage struct {
	ReservationRef string
	ThreadID       string
	Source         string
	Text           string
	ReplyTo        string
	GuestName      string
	GuestEmail     string
	ReceivedAt     time.Time
}

// Turn is one prior exchange in a conversation history window.
type Turn struct {
	Sender    string
	Text      string
	Timestamp time.Time
}

// Context is the assembled reply-generation input for one eligible guest
// message. Built fresh per message, never cached.
type Context struct {
	HostID        uuid.UUID
	ClientID      uuid.UUID
	PropertyID    uuid.UUID
	ReservationID uuid.UUID
	PropertyName  string
	ClientName    string
	ClientEmail   string
	History       []Turn
}

// StoredMessage is the persisted form of a routed (or unroutable) guest
// message. Unroutable and ineligible messages are recorded too, for
// manual follow-up.
type StoredMessage struct {
	ID            uuid.UUID
	HostID        uuid.UUID
	PropertyID    uuid.UUID
	ClientID      uuid.UUID
	ReservationID uuid.UUID
	Source        string
	Sender        string
	Body          string
	Eligible      bool
	ReceivedAt    time.Time
}
