// Package ingest classifies inbound channel payloads into typed messages
// and dispatches them to reconciliation and routing.
package ingest

import (
	"time"

	"github.com/hostbridge/hostbridge/internal/conversation"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

// Kind discriminates the typed message variants a classification yields.
type Kind string

const (
	KindReservationConfirmed Kind = "reservation-confirmed"
	KindReservationCancelled Kind = "reservation-cancelled"
	KindGuestMessage         Kind = "guest-message"
	KindUnhandled            Kind = "unhandled"
)

// Metadata travels with every classified message regardless of kind, so
// unhandled payloads stay attributable in logs and audits.
type Metadata struct {
	Subject           string
	Sender            string
	Recipients        []string
	ReceivedAt        time.Time
	ProviderMessageID string
	Snippet           string
}

// ParsedMessage is the classification result. Exactly one of Reservation
// or GuestMessage is set for the corresponding kind; both are nil for
// unhandled. Instances are immutable once produced.
type ParsedMessage struct {
	Kind     Kind
	Metadata Metadata

	Reservation  *reservation.Canonical
	GuestMessage *conversation.GuestMessage

	RawText string
	RawHTML string
}

// NewConfirmed wraps an extracted reservation as a confirmation.
func NewConfirmed(meta Metadata, res reservation.Canonical) ParsedMessage {
	return ParsedMessage{Kind: KindReservationConfirmed, Metadata: meta, Reservation: &res}
}

// NewCancelled wraps an extracted reservation as a cancellation.
func NewCancelled(meta Metadata, res reservation.Canonical) ParsedMessage {
	return ParsedMessage{Kind: KindReservationCancelled, Metadata: meta, Reservation: &res}
}

// NewGuestMessage wraps an extracted guest message.
func NewGuestMessage(meta Metadata, msg conversation.GuestMessage) ParsedMessage {
	return ParsedMessage{Kind: KindGuestMessage, Metadata: meta, GuestMessage: &msg}
}

// NewUnhandled records a payload no parser recognized, keeping only metadata.
func NewUnhandled(meta Metadata) ParsedMessage {
	return ParsedMessage{Kind: KindUnhandled, Metadata: meta}
}

// Event converts a reservation-kind message into the reconciler input.
func (m ParsedMessage) Event() (reservation.Event, bool) {
	if m.Reservation == nil {
		return reservation.Event{}, false
	}
	return reservation.Event{
		Reservation: *m.Reservation,
		Cancelled:   m.Kind == KindReservationCancelled,
	}, true
}
