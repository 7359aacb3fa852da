package krossbooking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostbridge/hostbridge/internal/ingest"
	"github.com/hostbridge/hostbridge/internal/reservation"
)

func reservationDTO() ReservationDTO {
	return ReservationDTO{
		IDReservation: "KB-1001",
		ChannelRef:    "4211398512",
		Label:         "Casa Bella Vista",
		DateArrival:   "2026-09-03",
		DateDeparture: "2026-09-05",
		Adults:        2,
		Children:      1,
		AmountTotal:   318.00,
		Status:        "CONF",
		GuestName:     "Marco Rossi",
		GuestEmail:    "Marco@Example.com",
	}
}

func TestAdaptReservationConfirmed(t *testing.T) {
	t.Parallel()

	msg := AdaptReservation(reservationDTO())
	require.Equal(t, ingest.KindReservationConfirmed, msg.Kind)

	res := msg.Reservation
	assert.Equal(t, "KB-1001", res.PrimaryID)
	assert.Equal(t, "4211398512", res.SecondaryID)
	assert.Equal(t, "krossbooking", res.SourceChannel)
	assert.Equal(t, "Casa Bella Vista", res.PropertyExternalName)
	assert.Equal(t, "marco@example.com", res.GuestEmail)
	require.NotNil(t, res.CheckIn)
	assert.Equal(t, "2026-09-03", res.CheckIn.Format("2006-01-02"))
	require.NotNil(t, res.TotalAmount)
	assert.Equal(t, "EUR", res.Currency, "unlabeled amounts default to EUR")
}

func TestAdaptReservationCancelled(t *testing.T) {
	t.Parallel()

	dto := reservationDTO()
	dto.Status = "CANC"
	msg := AdaptReservation(dto)
	assert.Equal(t, ingest.KindReservationCancelled, msg.Kind)
}

func TestAdaptReservationMissingIDUsesSentinel(t *testing.T) {
	t.Parallel()

	dto := reservationDTO()
	dto.IDReservation = ""
	msg := AdaptReservation(dto)
	assert.Equal(t, reservation.UnknownID, msg.Reservation.PrimaryID)
	assert.Equal(t, "4211398512", msg.Reservation.SecondaryID, "fallback key survives for resolution")
}

func TestReservationDeliveryIDVariesByStatus(t *testing.T) {
	t.Parallel()

	confirmed := AdaptReservation(reservationDTO())
	dto := reservationDTO()
	dto.Status = "CANC"
	cancelled := AdaptReservation(dto)
	assert.NotEqual(t, confirmed.Metadata.ProviderMessageID, cancelled.Metadata.ProviderMessageID,
		"a cancellation must not be deduped against the confirmation of the same reservation")
}

func TestAdaptMessageAdmissionRules(t *testing.T) {
	t.Parallel()

	base := MessageDTO{
		IDMessage:     "77",
		IDThread:      "th-9",
		IDReservation: "KB-1001",
		SenderRole:    "guest",
		GuestName:     "Marco Rossi",
		Text:          "A che ora possiamo arrivare?",
		CreatedAt:     "2026-08-30T10:00:00Z",
	}

	msg, ok := AdaptMessage(base)
	require.True(t, ok)
	assert.Equal(t, ingest.KindGuestMessage, msg.Kind)
	assert.Equal(t, "KB-1001", msg.GuestMessage.ReservationRef)
	assert.Equal(t, "th-9", msg.GuestMessage.ThreadID)

	hostReply := base
	hostReply.SenderRole = "host"
	_, ok = AdaptMessage(hostReply)
	assert.False(t, ok, "non-guest senders are discarded")

	unanchored := base
	unanchored.IDReservation = ""
	unanchored.IDThread = ""
	_, ok = AdaptMessage(unanchored)
	assert.False(t, ok, "a message with no reservation cross-reference cannot be reconciled")
}

func TestAdaptMessageMissingReservationFallsBackToThread(t *testing.T) {
	t.Parallel()

	dto := MessageDTO{
		IDMessage:  "78",
		IDThread:   "th-9",
		SenderRole: "guest",
		Text:       "ciao",
	}
	msg, ok := AdaptMessage(dto)
	require.True(t, ok)
	assert.Equal(t, reservation.UnknownID, msg.GuestMessage.ReservationRef)
	assert.Equal(t, "th-9", msg.GuestMessage.ThreadID)
}
